// Package pipeline runs the analyser over every SSH stream of one or more
// capture files.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sshniff/analyser"
	"sshniff/dissect"
	"sshniff/logging"
	"sshniff/plot"
	"sshniff/report"
)

// Options control a run.
type Options struct {
	// Stream selects a single stream of each file; negative selects all.
	Stream   int
	Workers  int
	Analysis analyser.Options
	// PlotDir receives one PNG per analysed stream when set.
	PlotDir string
	// Progress draws a progress bar over streams on ProgressOut.
	Progress    bool
	ProgressOut io.Writer
}

type job struct {
	file   int
	path   string
	stream *dissect.Stream
}

type outcome struct {
	job
	session *analyser.Session
	err     error
}

// Run analyses the given capture files. Files that cannot be read and
// streams that fail analysis are recorded in the report; they never stop
// the rest of the run.
func Run(ctx context.Context, paths []string, opts Options, log logrus.FieldLogger) (*report.Report, error) {
	runID := uuid.NewString()
	runLog := logging.ForRun(log, runID)
	rep := &report.Report{RunID: runID, Files: make([]report.FileResult, len(paths))}

	var jobs []job
	for i, path := range paths {
		rep.Files[i] = report.FileResult{
			File:     path,
			Sessions: make(map[uint32]*analyser.Session),
			Errors:   make(map[uint32]string),
		}
		capture, err := dissect.Open(path, runLog.WithField("file", path))
		if err != nil {
			runLog.WithError(err).WithField("file", path).Error("cannot read capture")
			rep.Files[i].Error = err.Error()
			continue
		}
		streams := capture.Streams(opts.Stream)
		runLog.WithFields(logrus.Fields{"file": path, "frames": capture.Frames, "streams": len(streams)}).
			Debug("capture decoded")
		if len(streams) == 0 {
			runLog.WithFields(logrus.Fields{"file": path, "stream": opts.Stream}).Warn("no SSH streams found")
		}
		for _, s := range streams {
			jobs = append(jobs, job{file: i, path: path, stream: s})
		}
	}
	if len(jobs) == 0 {
		return rep, nil
	}

	if opts.PlotDir != "" {
		if err := os.MkdirAll(opts.PlotDir, 0o755); err != nil {
			return nil, fmt.Errorf("create plot directory: %w", err)
		}
	}

	var bar *pb.ProgressBar
	if opts.Progress {
		bar = pb.New(len(jobs))
		if opts.ProgressOut != nil {
			bar.SetWriter(opts.ProgressOut)
		}
		bar.Start()
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan job)
	results := make(chan outcome)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				results <- analyse(j, opts, runLog)
			}
		}()
	}

	go func() {
		defer close(queue)
		for _, j := range jobs {
			select {
			case queue <- j:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		f := &rep.Files[res.file]
		if res.err != nil {
			f.Errors[res.stream.ID] = res.err.Error()
		} else {
			f.Sessions[res.stream.ID] = res.session
		}
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}
	return rep, ctx.Err()
}

// analyse runs one stream. A panic in the analyser is turned into an error
// for that stream.
func analyse(j job, opts Options, runLog *logrus.Entry) (res outcome) {
	res.job = j
	log := logging.ForStream(runLog, j.path, j.stream.ID)
	defer func() {
		if r := recover(); r != nil {
			res.session = nil
			res.err = fmt.Errorf("analysis panicked: %v", r)
			log.WithField("panic", r).Error("stream analysis aborted")
		}
	}()

	session, err := analyser.Analyse(j.stream.ID, j.stream.Packets, opts.Analysis, log)
	if err != nil {
		log.WithError(err).Error("stream analysis failed")
		res.err = err
		return res
	}
	log.WithFields(logrus.Fields{
		"events":     len(session.Events),
		"keystrokes": session.KeystrokeCount(),
	}).Info("stream analysed")

	if opts.PlotDir != "" {
		path := filepath.Join(opts.PlotDir, PlotName(j.path, j.stream.ID))
		if err := plot.Session(session, path); err != nil {
			log.WithError(err).Warn("cannot plot stream")
		} else {
			log.WithField("plot", path).Debug("plot saved")
		}
	}
	res.session = session
	return res
}

// PlotName is the file name of the plot of a stream.
func PlotName(capture string, stream uint32) string {
	base := strings.TrimSuffix(filepath.Base(capture), filepath.Ext(capture))
	return fmt.Sprintf("%s-stream-%d.png", base, stream)
}
