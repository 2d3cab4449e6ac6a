package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/fragmesh/model"
)

func TestBuildMessages_SkipsSystemAndEmpty(t *testing.T) {
	msgs := buildMessages([]model.Message{
		{Role: model.RoleSystem, Content: "sys"},
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: ""},
		{Role: model.RoleAssistant, Content: "answer"},
	})
	assert.Len(t, msgs, 2)
}

func TestSystemBlocks(t *testing.T) {
	blocks := systemBlocks(model.Request{
		Instructions: "be terse",
		Messages:     []model.Message{{Role: model.RoleSystem, Content: "extra"}},
	})
	if assert.Len(t, blocks, 2) {
		assert.Equal(t, "be terse", blocks[0].Text)
		assert.Equal(t, "extra", blocks[1].Text)
	}
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })
	assert.Equal(t, "anthropic", m.Info().Provider)
}
