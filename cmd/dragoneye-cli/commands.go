package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	"dragoneye/internal/core/domain"
	"dragoneye/internal/media"
)

type mediaFlags struct {
	file     string
	url      string
	mimeType string
}

func (m *mediaFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&m.file, "file", "", "path of a local media file")
	fs.StringVar(&m.url, "url", "", "url of remote media")
	fs.StringVar(&m.mimeType, "mime", "", "media MIME type (guessed from the file extension when omitted)")
}

// open builds the media source. The returned closer releases the file, if any.
func (m *mediaFlags) open() (*media.Source, io.Closer, error) {
	switch {
	case m.file != "" && m.url != "":
		return nil, nil, fmt.Errorf("%w: -file and -url are mutually exclusive", domain.ErrUsage)
	case m.file != "":
		return openFile(m.file, m.mimeType)
	case m.url != "":
		src, err := media.FromURL(m.url, m.mimeType)
		return src, io.NopCloser(nil), err
	default:
		return nil, nil, fmt.Errorf("%w: one of -file or -url is required", domain.ErrUsage)
	}
}

func openFile(path, mimeType string) (*media.Source, io.Closer, error) {
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrUsage, err)
	}
	src, err := media.FromReader(f, mimeType)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return src, f, nil
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// parseFlags returns flag.ErrHelp unwrapped after -h so main can exit cleanly.
func parseFlags(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, flag.ErrHelp):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrUsage, err)
	}
}

// watchStatus drives a spinner from the orchestrator's status observations.
func (a *app) watchStatus() func() {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("⏳ waiting"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	a.orchestrator.OnStatus(func(state domain.TaskState) {
		bar.Describe(fmt.Sprintf("⏳ %s", state.Status))
		_ = bar.Add(1)
	})
	return func() {
		_ = bar.Finish()
		a.orchestrator.OnStatus(nil)
	}
}

func (a *app) predictImage(ctx context.Context, args []string) error {
	fs := newFlagSet("predict-image")
	var mf mediaFlags
	mf.register(fs)
	model := fs.String("model", "", "model name")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	src, closer, err := mf.open()
	if err != nil {
		return err
	}
	defer closer.Close()

	done := a.watchStatus()
	res, err := a.orchestrator.PredictImage(ctx, src, *model)
	done()
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) predictVideo(ctx context.Context, args []string) error {
	fs := newFlagSet("predict-video")
	var mf mediaFlags
	mf.register(fs)
	model := fs.String("model", "", "model name")
	fps := fs.Int("fps", 0, "frames per second to sample (server default when 0)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	src, closer, err := mf.open()
	if err != nil {
		return err
	}
	defer closer.Close()

	done := a.watchStatus()
	res, err := a.orchestrator.PredictVideo(ctx, src, *model, *fps)
	done()
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) submit(ctx context.Context, args []string) error {
	fs := newFlagSet("submit")
	var mf mediaFlags
	mf.register(fs)
	model := fs.String("model", "", "model name")
	kind := fs.String("type", "image", "prediction type: image or video")
	fps := fs.Int("fps", 0, "frames per second to sample, video only")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	pt, err := domain.ParsePredictionType(*kind)
	if err != nil {
		return err
	}

	src, closer, err := mf.open()
	if err != nil {
		return err
	}
	defer closer.Close()

	task, err := a.orchestrator.Submit(ctx, pt, src, *model, *fps)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"prediction_task_uuid": task.UUID,
		"prediction_type":      string(task.PredictionType),
		"task_dir":             a.journal.GetTaskPath(task.UUID),
	})
}

func (a *app) wait(ctx context.Context, args []string) error {
	fs := newFlagSet("wait")
	taskID := fs.String("task", "", "prediction task uuid")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	done := a.watchStatus()
	state, err := a.orchestrator.Wait(ctx, *taskID)
	done()
	if err != nil {
		return err
	}
	return printJSON(state)
}

func (a *app) status(ctx context.Context, args []string) error {
	fs := newFlagSet("status")
	taskID := fs.String("task", "", "prediction task uuid")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	state, err := a.orchestrator.Status(ctx, *taskID)
	if err != nil {
		return err
	}
	return printJSON(state)
}

func (a *app) results(ctx context.Context, args []string) error {
	fs := newFlagSet("results")
	taskID := fs.String("task", "", "prediction task uuid")
	kind := fs.String("type", "", "prediction type: image or video (read from the task journal when omitted)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var pt domain.PredictionType
	if *kind != "" {
		parsed, err := domain.ParsePredictionType(*kind)
		if err != nil {
			return err
		}
		pt = parsed
	} else {
		rec, err := a.journal.LoadTask(ctx, *taskID)
		if err != nil {
			return fmt.Errorf("%w: -type is required for tasks not in the journal: %v", domain.ErrUsage, err)
		}
		pt = rec.PredictionType
	}

	res, err := a.orchestrator.Results(ctx, *taskID, pt)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) classify(ctx context.Context, args []string) error {
	fs := newFlagSet("classify")
	var mf mediaFlags
	mf.register(fs)
	model := fs.String("model", "", "model name")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	src, closer, err := mf.open()
	if err != nil {
		return err
	}
	defer closer.Close()

	res, err := a.client.ClassifyImage(ctx, src, *model)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) parseScreenshot(ctx context.Context, args []string) error {
	fs := newFlagSet("parse-screenshot")
	var mf mediaFlags
	mf.register(fs)
	model := fs.String("model", "", "model name")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	src, closer, err := mf.open()
	if err != nil {
		return err
	}
	defer closer.Close()

	res, err := a.client.ParseScreenshot(ctx, src, *model)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func (a *app) classifyProduct(ctx context.Context, args []string) error {
	fs := newFlagSet("classify-product")
	files := fs.String("files", "", "comma-separated local image paths")
	urls := fs.String("urls", "", "comma-separated image urls")
	model := fs.String("model", "", "model name")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var images []*media.Source
	for _, path := range splitList(*files) {
		src, closer, err := openFile(path, "")
		if err != nil {
			return err
		}
		defer closer.Close()
		images = append(images, src)
	}
	for _, u := range splitList(*urls) {
		src, err := media.FromURL(u, "")
		if err != nil {
			return err
		}
		images = append(images, src)
	}

	res, err := a.client.ClassifyProduct(ctx, images, *model)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
