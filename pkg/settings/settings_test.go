package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wcmpd.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFrom_Missing(t *testing.T) {
	s, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if s.RedisAddr != DefaultRedisAddr || s.Table != DefaultTable {
		t.Errorf("defaults not applied: %+v", s)
	}
	if s.Log.Level != "info" || s.Log.Format != "text" {
		t.Errorf("log defaults = %+v", s.Log)
	}
}

func TestLoadFrom_Full(t *testing.T) {
	path := writeFile(t, `
redis_addr: 10.0.0.5:6379
ssh:
  host: 10.0.0.5
  user: admin
  password: YourPaSsWoRd
log:
  level: debug
  format: json
audit:
  path: /var/log/wcmpd/audit.log
  max_size_mb: 10
  max_backups: 3
capacity:
  max_groups: 128
  max_members: 4096
next_hops:
  ju1u32m1.atl11:qe-3/7: oid:0x4000000000001
  ju1u32m2.atl11:qe-3/7: "oid:0x4000000000002"
`)
	s, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	want := &Settings{
		RedisAddr: "10.0.0.5:6379",
		SSH:       &SSH{Host: "10.0.0.5", Port: 22, User: "admin", Password: "YourPaSsWoRd"},
		Table:     DefaultTable,
		Log:       Log{Level: "debug", Format: "json"},
		Audit:     Audit{Path: "/var/log/wcmpd/audit.log", MaxSizeMB: 10, MaxBackups: 3},
		Capacity:  Capacity{MaxGroups: 128, MaxMembers: 4096},
		NextHops: map[string]sai.OID{
			"ju1u32m1.atl11:qe-3/7": 0x4000000000001,
			"ju1u32m2.atl11:qe-3/7": 0x4000000000002,
		},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "redis_addr: [unterminated"},
		{"bad log format", "log:\n  format: xml\n"},
		{"ssh without host", "ssh:\n  user: admin\n"},
		{"negative capacity", "capacity:\n  max_groups: -1\n"},
		{"bad oid", "next_hops:\n  nh: oid:zz\n"},
		{"null oid", "next_hops:\n  nh: oid:0x0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFrom(writeFile(t, tt.content)); err == nil {
				t.Error("LoadFrom() should fail")
			}
		})
	}
}

func TestValidate_IsValidationError(t *testing.T) {
	s := &Settings{Log: Log{Format: "xml"}}
	err := s.Validate()
	var ve *util.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Validate() error = %T, want *util.ValidationError", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "wcmpd.yaml")
	original := &Settings{
		RedisAddr: "127.0.0.1:6380",
		Table:     "P4RT_TABLE",
		Log:       Log{Level: "warn", Format: "text"},
		NextHops:  map[string]sai.OID{"nh-1": 0x4000000000001},
	}
	if err := original.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if diff := cmp.Diff(original, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
