package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsAllQueryWords(t *testing.T) {
	tests := []struct {
		name     string
		document string
		query    string
		want     bool
	}{
		{"all words present", "Docker runs containers on Linux.", "docker containers", true},
		{"case and punctuation ignored", "DOCKER, containers!", "Docker containers?", true},
		{"stop words ignored", "docker containers", "what is the docker", true},
		{"missing word", "docker containers", "docker kubernetes", false},
		{"only stop words", "docker", "the a an", false},
		{"empty query", "docker", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, containsAllQueryWords(tt.document, tt.query))
		})
	}
}
