package qwen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_RegistersUnderQwenPhysicalName(t *testing.T) {
	p := New(Config{APIKey: "key"}, nil)
	assert.Equal(t, "qwen", p.Name())
}
