package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/realty-agent/internal/model"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "realty.t_01.abc.turn", TurnSubject("t_01", "abc"))
	assert.Equal(t, "realty.t_01.abc.event.closed", EventSubject("t_01", "abc", model.SessionClosed))
	assert.Equal(t, "realty.t_01.abc.>", SessionFilter("t_01", "abc"))
}

func TestSubjectTokensAreSanitized(t *testing.T) {
	assert.Equal(t, "realty.acme_inc.s_1.turn", TurnSubject("acme.inc", "s*1"))
	assert.Equal(t, "realty.a_b.c_.turn", TurnSubject("a b", "c>"))
}
