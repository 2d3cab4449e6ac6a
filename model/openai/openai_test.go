package openai

import (
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/fragmesh/model"
)

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages(model.Request{
		Instructions: "sys",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "q"},
			{Role: model.RoleAssistant, Content: "a"},
			{Role: "other", Content: ""},
		},
	})
	assert.Len(t, msgs, 3)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	assert.NotNil(t, msgs[2].OfAssistant)
}

func TestInfo(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "gpt-test" })
	assert.Equal(t, model.Info{Name: "gpt-test", Provider: "openai"}, m.Info())
}

func TestParams(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) {
		o.Seed = 7
		o.MaxCompletionTokens = 256
	})
	p := m.params(model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "q"}}})
	assert.Equal(t, openai.ChatModelGPT4oMini, p.Model)
	assert.Equal(t, int64(7), p.Seed.Value)
	assert.Equal(t, int64(256), p.MaxCompletionTokens.Value)
	assert.Len(t, p.Messages, 1)

	p = NewModelFromClient(nil).params(model.Request{})
	assert.False(t, p.Seed.Valid())
}
