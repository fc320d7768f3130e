package loader

import (
	"github.com/pkg/errors"

	"github.com/benschubert/wast/pkg/stepdef"
)

// runShellEntry template-renders command and env against params (the
// instance's resolved parameter vector), resolves any surviving
// `{{ steps.<id>.<stream> }}` artifact references against the runner's live
// artifact bus, and runs the result.
func runShellEntry(r stepdef.StepRunner, params stepdef.ParameterVector, command []string, env map[string]string, external, silentOnSuccess bool) error {
	data := make(map[string]interface{}, len(params))
	for k, v := range params {
		data[k] = v
	}

	renderedCommand := make([]string, len(command))
	for i, arg := range command {
		rendered, err := renderTemplate(arg, data)
		if err != nil {
			return errors.Wrapf(err, "rendering command argument %q", arg)
		}
		renderedCommand[i] = resolveArtifactRefs(rendered, r.GetArtifacts)
	}

	renderedEnv := make(map[string]string, len(env))
	for k, v := range env {
		rendered, err := renderTemplate(v, data)
		if err != nil {
			return errors.Wrapf(err, "rendering env value for %q", k)
		}
		renderedEnv[k] = resolveArtifactRefs(rendered, r.GetArtifacts)
	}

	result, err := r.Run(renderedCommand, stepdef.RunOptions{
		Env:             renderedEnv,
		ExternalCommand: external,
		SilentOnSuccess: silentOnSuccess,
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return errors.Errorf("command %v exited %d", renderedCommand, result.ExitCode)
	}
	return nil
}
