package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSeedUsers(t *testing.T) {
	path := writeSeedFile(t, `{"users": [
		{"email": "a@example.com", "password": "pw", "firstName": "A", "lastName": "B", "role": "admin"},
		{"email": "r@example.com", "password": "pw", "firstName": "C", "lastName": "D", "role": "REVIEWER"}
	]}`)

	users, err := loadSeedUsers(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].Email != "a@example.com" || users[1].Role != "REVIEWER" {
		t.Errorf("unexpected parse result: %+v", users)
	}
}

func TestLoadSeedUsersMissingFile(t *testing.T) {
	if _, err := loadSeedUsers(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadSeedUsersRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty user list", `{"users": []}`},
		{"unknown role", `{"users": [{"email": "a@example.com", "password": "pw", "role": "MANAGER"}]}`},
		{"missing password", `{"users": [{"email": "a@example.com", "role": "viewer"}]}`},
		{"not json", `users: nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadSeedUsers(writeSeedFile(t, tt.content)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
