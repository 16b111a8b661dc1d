package facematch

import "testing"

func TestPersonNameFromObject(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan_Novák.jpg", "Jan Novák"},
		{"refs/Jan_Novák.front.jpg", "Jan Novák"},
		{"jan-novak.png", "jan-novak"},
		{"noextension", "noextension"},
		{"windows\\path\\Eva.jpeg", "Eva"},
		{".hidden", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := PersonNameFromObject(tt.input)
			if result != tt.expected {
				t.Errorf("PersonNameFromObject(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSameName(t *testing.T) {
	tests := []struct {
		a, b     string
		expected bool
	}{
		{"Jan Novák", "jan-novak", true},
		{"JOHN DOE", "john doe", true},
		{"Jan", "Jana", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			if got := SameName(tt.a, tt.b); got != tt.expected {
				t.Errorf("SameName(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}
