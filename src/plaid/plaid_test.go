package plaid

import "testing"

func TestNewPlaidClient(t *testing.T) {
	for _, env := range []string{"sandbox", "production"} {
		c, err := NewPlaidClient("client", "secret", env, 0)
		if err != nil || c == nil {
			t.Errorf("NewPlaidClient(%q) = %v, %v", env, c, err)
		}
	}
	if _, err := NewPlaidClient("client", "secret", "development", 0); err == nil {
		t.Error("expected error for unknown environment")
	}
}
