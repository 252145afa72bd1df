package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromExchangesSkipsBlankSides(t *testing.T) {
	history := FromExchanges([]Exchange{
		{User: "qué empresas hay", Assistant: "Hay tres empresas."},
		{User: "  ", Assistant: "¿En qué te ayudo?"},
	})

	require.Len(t, history, 3)
	assert.Equal(t, Turn{Speaker: SpeakerUser, Text: "qué empresas hay"}, history[0])
	assert.Equal(t, SpeakerAssistant, history[2].Speaker)
}

func TestWithDoesNotAliasReceiver(t *testing.T) {
	base := make(History, 1, 8)
	base[0] = Turn{Speaker: SpeakerUser, Text: "hola"}

	first := base.With(Turn{Speaker: SpeakerAssistant, Text: "a"})
	second := base.With(Turn{Speaker: SpeakerAssistant, Text: "b"})

	assert.Len(t, base, 1)
	assert.Equal(t, "a", first[1].Text)
	assert.Equal(t, "b", second[1].Text)
}

func TestLastAndRender(t *testing.T) {
	history := History{
		{Speaker: SpeakerUser, Text: "uno"},
		{Speaker: SpeakerAssistant, Text: "dos\ncon salto"},
		{Speaker: SpeakerUser, Text: "tres"},
	}

	assert.Equal(t, "assistant: dos con salto\nuser: tres\n", history.Last(2).Render())
	assert.Len(t, history.Last(0), 3)
	assert.Equal(t, "", History(nil).Render())
}

func TestValidate(t *testing.T) {
	require.NoError(t, History{{Speaker: SpeakerUser, Text: "x"}}.Validate())
	require.Error(t, History{{Speaker: "system", Text: "x"}}.Validate())
}
