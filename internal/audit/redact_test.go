package audit

import "testing"

func TestIsSecretKey(t *testing.T) {
	secret := []string{
		"password", "PASSWORD", "sr_password", "db_password",
		"token", "apiToken", "api_token", "CENTRAL_API_TOKEN",
		"secret", "client_secret", "ssh_password",
	}
	for _, k := range secret {
		if !IsSecretKey(k) {
			t.Errorf("IsSecretKey(%q) = false, want true", k)
		}
	}

	clear := []string{"user", "host", "sql", "node_ip", "query", "port"}
	for _, k := range clear {
		if IsSecretKey(k) {
			t.Errorf("IsSecretKey(%q) = true, want false", k)
		}
	}
}

func TestRedactMasksRecursively(t *testing.T) {
	in := map[string]interface{}{
		"host":     "localhost",
		"password": "hunter2",
		"nested": map[string]interface{}{
			"api_token": "abc123",
			"port":      9030,
		},
		"list": []interface{}{
			map[string]interface{}{"secret": "s3cr3t", "name": "a"},
		},
	}

	out, ok := Redact(in).(map[string]interface{})
	if !ok {
		t.Fatalf("Redact did not return a map")
	}

	if out["password"] != MaskedValue {
		t.Errorf("password = %v, want %q", out["password"], MaskedValue)
	}
	if out["host"] != "localhost" {
		t.Errorf("host = %v, want localhost", out["host"])
	}

	nested := out["nested"].(map[string]interface{})
	if nested["api_token"] != MaskedValue {
		t.Errorf("nested api_token = %v, want %q", nested["api_token"], MaskedValue)
	}
	if nested["port"] != 9030 {
		t.Errorf("nested port = %v, want 9030", nested["port"])
	}

	item := out["list"].([]interface{})[0].(map[string]interface{})
	if item["secret"] != MaskedValue {
		t.Errorf("list secret = %v, want %q", item["secret"], MaskedValue)
	}
	if item["name"] != "a" {
		t.Errorf("list name = %v, want a", item["name"])
	}
}

func TestRedactDoesNotMutateInput(t *testing.T) {
	in := map[string]interface{}{"password": "hunter2"}
	Redact(in)
	if in["password"] != "hunter2" {
		t.Errorf("input mutated: password = %v", in["password"])
	}
}
