package spec

import (
	"testing"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const finetuneSpec = `
job:
  type: finetune
  image: ghcr.io/aiforge/trainer:1.4
  command: ["python", "train.py", "--epochs", "3"]
  env:
    HF_HOME: /cache
  config:
    base_model: llama-3-8b
    lora_rank: 16
  inputs:
    - bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy
  outputs:
    - adapter.safetensors
  resources:
    gpus: 1
    memory: 24g
    cpu: 8
`

func TestParseJobSpec(t *testing.T) {
	req, err := ParseJobSpec(finetuneSpec)
	require.NoError(t, err)

	assert.Equal(t, models.JobTypeFinetune, req.Type)
	assert.Equal(t, "ghcr.io/aiforge/trainer:1.4", req.DockerImage)
	assert.Equal(t, []string{"python", "train.py", "--epochs", "3"}, req.Command)
	assert.Equal(t, "/cache", req.Environment["HF_HOME"])
	assert.Equal(t, "llama-3-8b", req.Config["base_model"])
	assert.Equal(t, 16, req.Config["lora_rank"])
	assert.Len(t, req.InputFiles, 1)
	assert.Equal(t, []string{"adapter.safetensors"}, req.OutputFiles)
	assert.Equal(t, 1, req.Requirements.GPUs)
	assert.Equal(t, "24G", req.Requirements.MemoryLimit)
	assert.Equal(t, 8.0, req.Requirements.CPULimit)
	assert.Equal(t, finetuneSpec, req.SpecYAML)
}

func TestParseJobSpecErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "job: [unclosed"},
		{"unknown type", "job:\n  type: train\n"},
		{"missing type", "job:\n  image: x\n"},
		{"bad memory", "job:\n  type: test\n  resources:\n    memory: lots\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJobSpec(tt.yaml)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestParseJobSpecDefaults(t *testing.T) {
	req, err := ParseJobSpec("job:\n  type: test\n")
	require.NoError(t, err)
	assert.NotNil(t, req.Config)
	assert.Zero(t, req.Requirements.GPUs)
}
