// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_StripsDangerousKeys(t *testing.T) {
	ctx := Context{
		Options: map[string]string{
			"__proto__": "x",
			"path":      "/tmp/report",
		},
		Payload: map[string]interface{}{
			"constructor": map[string]interface{}{"evil": true},
			"nested": map[string]interface{}{
				"prototype": "bad",
				"ok":        1,
			},
			"list": []interface{}{
				map[string]interface{}{"__proto__": "bad", "keep": "yes"},
			},
		},
	}

	clean := ctx.Sanitize()

	assert.NotContains(t, clean.Options, "__proto__")
	assert.Equal(t, "/tmp/report", clean.Options["path"])

	assert.NotContains(t, clean.Payload, "constructor")
	nested := clean.Payload["nested"].(map[string]interface{})
	assert.NotContains(t, nested, "prototype")
	assert.Equal(t, 1, nested["ok"])

	item := clean.Payload["list"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, item, "__proto__")
	assert.Equal(t, "yes", item["keep"])

	// Original is untouched.
	assert.Contains(t, ctx.Options, "__proto__")
}

func TestSanitize_EmptyContext(t *testing.T) {
	clean := Context{}.Sanitize()
	assert.Nil(t, clean.Options)
	assert.Nil(t, clean.Payload)
}

func TestHintValidate(t *testing.T) {
	var nilHint *Hint
	assert.NoError(t, nilHint.Validate())

	assert.NoError(t, (&Hint{Type: HintTypeSkill, Confidence: 0.7}).Validate())
	assert.NoError(t, (&Hint{Type: HintTypeAgent, Confidence: 0}).Validate())

	assert.Error(t, (&Hint{Type: "model", Confidence: 0.5}).Validate())
	assert.Error(t, (&Hint{Type: HintTypeSkill, Confidence: 1.2}).Validate())
	assert.Error(t, (&Hint{Type: HintTypeAgent, Confidence: -0.1}).Validate())
}
