package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"triage/internal/casedb"
	"triage/internal/logging"
	"triage/internal/pipeline"
	"triage/internal/queue"
	"triage/internal/services"
)

// ExecName is the registry name of the exec module.
const ExecName = "exec"

const (
	maxExecOutputBytes = 10 * 1024 * 1024
	maxLogOutputBytes  = 1024
	defaultExecTimeout = 5 * time.Minute
)

// execInput is written to the program's stdin.
type execInput struct {
	Kind string         `json:"kind"`
	ID   int64          `json:"id"`
	File *execFile      `json:"file,omitempty"`
	Args map[string]any `json:"args"`
}

type execFile struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	MD5         string `json:"md5,omitempty"`
	Source      string `json:"source"`
	ContentPath string `json:"content_path,omitempty"`
}

// execModule runs an external program per task. The program reads one JSON
// document on stdin and answers with
// {"status":"ok|stop|fail","error":"","attributes":{...}} on stdout.
type execModule struct {
	name    string
	command []string
	timeout time.Duration
	args    map[string]any
	store   *casedb.Store
	logger  *slog.Logger
}

func newExec(deps pipeline.Deps, args pipeline.Args) (pipeline.Module, error) {
	if err := requireStore(ExecName, deps); err != nil {
		return nil, err
	}
	command, err := args.Strings("command")
	if err != nil {
		return nil, err
	}
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("argument command is required")
	}
	if deps.Config != nil {
		command[0] = deps.Config.ResolveProgPath(command[0])
	}
	timeout, err := args.Duration("timeout", defaultExecTimeout)
	if err != nil {
		return nil, err
	}
	name, err := args.String("name", ExecName)
	if err != nil {
		return nil, err
	}
	passed, err := args.Map("args")
	if err != nil {
		return nil, err
	}
	if passed == nil {
		passed = map[string]any{}
	}
	return &execModule{
		name:    name,
		command: command,
		timeout: timeout,
		args:    passed,
		store:   deps.Store,
		logger:  logging.NewComponentLogger(deps.Logger, ExecName),
	}, nil
}

func (m *execModule) Name() string { return m.name }

func (m *execModule) Run(ctx context.Context, task queue.Task) (pipeline.Status, error) {
	input := execInput{Kind: string(task.Kind), ID: task.ID, Args: m.args}
	attrFileID := int64(0)
	if task.Kind == queue.KindFileAnalysis {
		file, err := loadFile(ctx, m.name, m.store, task.ID)
		if err != nil {
			return pipeline.StatusFail, err
		}
		input.File = &execFile{
			ID:          file.ID,
			Name:        file.Name,
			Path:        file.FullPath(),
			Size:        file.Size,
			MD5:         file.MD5,
			Source:      string(file.Source),
			ContentPath: file.ContentPath,
		}
		attrFileID = file.ID
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return pipeline.StatusFail, fmt.Errorf("marshal %s input: %w", m.name, err)
	}

	stdout, err := m.invoke(ctx, payload)
	if err != nil {
		return pipeline.StatusFail, err
	}
	return m.apply(ctx, attrFileID, stdout)
}

func (m *execModule) invoke(ctx context.Context, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var stdout, stderr limitedBuffer
	stdout.limit = maxExecOutputBytes
	stderr.limit = maxLogOutputBytes
	cmd := exec.CommandContext(ctx, m.command[0], m.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, m.name, "run",
				fmt.Sprintf("%s exceeded %s", m.command[0], m.timeout), ctx.Err())
		}
		return nil, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, services.Wrap(services.ErrExternalTool, m.name, "run",
				fmt.Sprintf("%s exited with code %d: %s", m.command[0], exitErr.ExitCode(), strings.TrimSpace(stderr.String())), err)
		}
		return nil, services.Wrap(services.ErrExternalTool, m.name, "start", m.command[0], err)
	}
	if stdout.overflow {
		return nil, services.Wrap(services.ErrExternalTool, m.name, "read output",
			fmt.Sprintf("stdout exceeded %d bytes", maxExecOutputBytes), nil)
	}
	m.logger.Debug("program finished",
		logging.String("command", m.command[0]),
		logging.Int("stdout_bytes", stdout.Len()),
	)
	return stdout.Bytes(), nil
}

func (m *execModule) apply(ctx context.Context, fileID int64, stdout []byte) (pipeline.Status, error) {
	if !gjson.ValidBytes(stdout) {
		prefix := string(stdout)
		if len(prefix) > maxLogOutputBytes {
			prefix = prefix[:maxLogOutputBytes] + "... (truncated)"
		}
		return pipeline.StatusFail, services.Wrap(services.ErrExternalTool, m.name, "parse output",
			fmt.Sprintf("invalid JSON on stdout: %q", prefix), nil)
	}
	result := gjson.ParseBytes(stdout)

	var putErr error
	result.Get("attributes").ForEach(func(key, value gjson.Result) bool {
		putErr = m.store.PutAttribute(ctx, fileID, m.name+"."+key.String(), json.RawMessage(value.Raw))
		return putErr == nil
	})
	if putErr != nil {
		return pipeline.StatusFail, putErr
	}

	switch status := strings.ToLower(result.Get("status").String()); status {
	case "", "ok":
		return pipeline.StatusOK, nil
	case "stop":
		return pipeline.StatusStop, nil
	case "fail":
		msg := result.Get("error").String()
		if msg == "" {
			msg = "program reported failure"
		}
		return pipeline.StatusFail, services.Wrap(services.ErrExternalTool, m.name, "run", msg, nil)
	default:
		return pipeline.StatusFail, services.Wrap(services.ErrExternalTool, m.name, "parse output",
			fmt.Sprintf("unknown status %q", status), nil)
	}
}

// limitedBuffer keeps the first limit bytes written and discards the rest.
type limitedBuffer struct {
	bytes.Buffer
	limit    int
	overflow bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.Len()
	if room <= 0 {
		b.overflow = b.overflow || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.overflow = true
		_, _ = b.Buffer.Write(p[:room])
		return len(p), nil
	}
	return b.Buffer.Write(p)
}
