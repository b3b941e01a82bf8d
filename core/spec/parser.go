package spec

import (
	"fmt"
	"regexp"
	"strings"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"
	"aiforge-core/core/scheduler"

	"gopkg.in/yaml.v3"
)

// JobSpec represents the YAML job specification
type JobSpec struct {
	Job JobSpecJob `yaml:"job"`
}

// JobSpecJob represents the job section of the spec
type JobSpecJob struct {
	Type      string                 `yaml:"type"`
	Image     string                 `yaml:"image"`
	Command   []string               `yaml:"command"`
	Env       map[string]string      `yaml:"env"`
	Config    map[string]interface{} `yaml:"config"`
	Inputs    []string               `yaml:"inputs"`  // Content ids
	Outputs   []string               `yaml:"outputs"` // Expected output files
	Resources JobSpecResources       `yaml:"resources"`
}

// JobSpecResources represents resource requirements
type JobSpecResources struct {
	GPUs   int     `yaml:"gpus"`
	Memory string  `yaml:"memory"` // e.g. "16G", "512M"
	CPU    float64 `yaml:"cpu"`
}

var memoryPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[KMGT]i?B?$`)

// ParseJobSpec parses a YAML job specification into a submit request
func ParseJobSpec(specYAML string) (*scheduler.SubmitRequest, error) {
	var spec JobSpec
	if err := yaml.Unmarshal([]byte(specYAML), &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %v: %w", err, errs.ErrValidation)
	}

	jobType := models.JobType(strings.ToLower(strings.TrimSpace(spec.Job.Type)))
	if !jobType.Valid() {
		return nil, fmt.Errorf("unknown job type %q: %w", spec.Job.Type, errs.ErrValidation)
	}

	memory := strings.ToUpper(strings.TrimSpace(spec.Job.Resources.Memory))
	if memory != "" && !memoryPattern.MatchString(memory) {
		return nil, fmt.Errorf("invalid memory limit %q: %w", spec.Job.Resources.Memory, errs.ErrValidation)
	}

	config := spec.Job.Config
	if config == nil {
		config = map[string]interface{}{}
	}

	return &scheduler.SubmitRequest{
		Type:        jobType,
		Config:      config,
		InputFiles:  spec.Job.Inputs,
		OutputFiles: spec.Job.Outputs,
		DockerImage: spec.Job.Image,
		Command:     spec.Job.Command,
		Environment: spec.Job.Env,
		Requirements: models.JobRequirements{
			GPUs:        spec.Job.Resources.GPUs,
			MemoryLimit: memory,
			CPULimit:    spec.Job.Resources.CPU,
		},
		SpecYAML: specYAML,
	}, nil
}
