package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportpulse/supportpulse/model"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		types []model.PIIEntityType
	}{
		{
			name:  "email",
			text:  "reach me at jane.doe@example.com please",
			types: []model.PIIEntityType{model.PIIEmail},
		},
		{
			name:  "ssn",
			text:  "my ssn is 123-45-6789",
			types: []model.PIIEntityType{model.PIISSN},
		},
		{
			name:  "credit card",
			text:  "card 4111 1111 1111 1111 was charged twice",
			types: []model.PIIEntityType{model.PIICreditCard},
		},
		{
			name:  "account number",
			text:  "it's the account ending #99871",
			types: []model.PIIEntityType{model.PIIAccountNumber},
		},
		{
			name:  "name",
			text:  "hello, my name is Jane Doe and I need help",
			types: []model.PIIEntityType{model.PIIName},
		},
		{
			name:  "clean text",
			text:  "the app crashes when I open settings",
			types: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := Detect(tt.text)
			require.Len(t, entities, len(tt.types))
			for i, want := range tt.types {
				assert.Equal(t, want, entities[i].Type)
				assert.Equal(t, Mask, entities[i].RedactedValue)
				assert.Less(t, entities[i].Start, entities[i].End)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	entities, masked := Redact("email jane@example.com, ssn 123-45-6789")

	require.Len(t, entities, 2)
	assert.Equal(t, "email [REDACTED], ssn [REDACTED]", masked)

	// Clean text passes through untouched.
	entities, masked = Redact("no sensitive data here")
	assert.Nil(t, entities)
	assert.Equal(t, "no sensitive data here", masked)
}

func TestDetectOrderedAndNonOverlapping(t *testing.T) {
	entities := Detect("ssn 123-45-6789 then email a@b.co end")

	require.Len(t, entities, 2)
	assert.Equal(t, model.PIISSN, entities[0].Type)
	assert.Equal(t, model.PIIEmail, entities[1].Type)
	assert.LessOrEqual(t, entities[0].End, entities[1].Start)
}
