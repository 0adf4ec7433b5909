package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "already normalized",
			input:    "https://example.com/jobs/123",
			expected: "https://example.com/jobs/123",
		},
		{
			name:     "missing scheme defaults to https",
			input:    "example.com/jobs/123",
			expected: "https://example.com/jobs/123",
		},
		{
			name:     "host lowercased, path preserved",
			input:    "https://Boards.Greenhouse.io/Acme/jobs/42",
			expected: "https://boards.greenhouse.io/Acme/jobs/42",
		},
		{
			name:     "uppercase scheme recognised and lowercased",
			input:    "HTTP://Example.com/jobs/",
			expected: "http://example.com/jobs",
		},
		{
			name:     "fragment stripped",
			input:    "https://example.com/jobs/123#apply",
			expected: "https://example.com/jobs/123",
		},
		{
			name:     "tracking parameters stripped",
			input:    "https://example.com/jobs/123?utm_source=li&utm_medium=social&gh_src=abc",
			expected: "https://example.com/jobs/123",
		},
		{
			name:     "meaningful params kept and sorted",
			input:    "https://example.com/jobs?page=2&dept=eng",
			expected: "https://example.com/jobs?dept=eng&page=2",
		},
		{
			name:     "trailing slash removed",
			input:    "https://example.com/jobs/",
			expected: "https://example.com/jobs",
		},
		{
			name:     "root slash removed",
			input:    "https://example.com/",
			expected: "https://example.com",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  https://example.com/jobs/123  ",
			expected: "https://example.com/jobs/123",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeURL(tt.input))
		})
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	inputs := []string{
		"https://example.com/jobs/123?utm_source=li&ref=feed#top",
		"Example.COM/careers/",
		"https://jobs.lever.co/acme/a1b2?lever-origin=applied",
		"https://example.com/jobs?b=2&a=1",
	}

	for _, input := range inputs {
		once := NormalizeURL(input)
		twice := NormalizeURL(once)
		assert.Equal(t, once, twice, "normalize should be idempotent for %q", input)
	}
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", DomainOf("https://www.example.com/jobs"))
	assert.Equal(t, "example.com", DomainOf("http://EXAMPLE.com:8080/x"))
	assert.Equal(t, "boards.greenhouse.io", DomainOf("boards.greenhouse.io/acme"))
	assert.Equal(t, "", DomainOf(""))
}

func TestSameDomain(t *testing.T) {
	assert.True(t, SameDomain("https://www.acme.com/careers", "http://acme.com/about"))
	assert.False(t, SameDomain("https://acme.com", "https://other.com"))
	assert.False(t, SameDomain("", ""))
}
