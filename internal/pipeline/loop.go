package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-id/internal/enroll"
	"github.com/kozaktomas/face-id/internal/imageio"
)

// FrameSource yields frames in order and returns io.EOF when exhausted.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, string, error)
}

// DirFrames reads image files from a directory in name order.
type DirFrames struct {
	paths []string
	next  int
}

func NewDirFrames(dir string) (*DirFrames, error) {
	paths, err := imageio.ListFrames(dir)
	if err != nil {
		return nil, err
	}
	return &DirFrames{paths: paths}, nil
}

// Len returns the number of frames in the directory.
func (d *DirFrames) Len() int {
	return len(d.paths)
}

func (d *DirFrames) Next(ctx context.Context) (image.Image, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if d.next >= len(d.paths) {
		return nil, "", io.EOF
	}
	path := d.paths[d.next]
	d.next++

	img, err := imageio.DecodeFile(path)
	if err != nil {
		return nil, path, err
	}
	return img, filepath.Base(path), nil
}

// Run is the frame-synchronous host loop. Each line read from commands is
// one of:
//
//	(empty) or f   process the next frame
//	m              toggle recognition/enrollment mode
//	n NAME         bind the enrollment name
//	c              capture the faces of the last frame
//	s              print the status
//	q              quit
//
// End of input quits as well. Quitting saves the gallery and returns the
// save error, if any.
func Run(ctx context.Context, ctrl *Controller, frames FrameSource, commands io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(commands)
	exhausted := false

loop:
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "", "f":
			if exhausted {
				fmt.Fprintln(out, "no more frames")
				continue
			}
			frame, name, err := frames.Next(ctx)
			if errors.Is(err, io.EOF) {
				exhausted = true
				fmt.Fprintln(out, "no more frames")
				continue
			}
			if err != nil {
				fmt.Fprintf(out, "frame %s: %v\n", name, err)
				continue
			}
			res, err := ctrl.ProcessFrame(ctx, frame)
			if err != nil {
				fmt.Fprintf(out, "frame %s: %v\n", name, err)
				continue
			}
			printFrame(out, name, res)
		case "m":
			mode, err := ctrl.ToggleMode()
			if err != nil {
				fmt.Fprintf(out, "mode: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "mode: %s\n", mode)
		case "n":
			if err := ctrl.BindName(arg); err != nil {
				fmt.Fprintf(out, "name: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "name: %s\n", ctrl.Status().Enrollment.Name)
		case "c":
			printCapture(out, ctrl.Capture(ctx))
		case "s":
			st := ctrl.Status()
			fmt.Fprintf(out, "mode: %s, identities: %d, enrollment: %s %d/%d\n",
				st.Mode, st.Identities, st.Enrollment.State, st.Enrollment.Shot, st.Enrollment.Shots)
		case "q":
			break loop
		default:
			fmt.Fprintf(out, "unknown command %q\n", cmd)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading commands: %w", err)
	}

	// Save even when ctx was cancelled by a signal.
	if err := ctrl.Quit(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	fmt.Fprintln(out, "gallery saved")
	return nil
}

func printFrame(out io.Writer, name string, res FrameResult) {
	if len(res.Faces) == 0 {
		fmt.Fprintf(out, "%s: no faces\n", name)
		return
	}
	for _, f := range res.Faces {
		switch {
		case f.Err != nil:
			fmt.Fprintf(out, "%s: face %d %v: %v\n", name, f.Index, f.Box, f.Err)
		case f.Match != nil:
			fmt.Fprintf(out, "%s: face %d %v: %s (%.4f)\n", name, f.Index, f.Box, f.Label, f.Match.Distance)
		default:
			fmt.Fprintf(out, "%s: face %d %v: ready for capture\n", name, f.Index, f.Box)
		}
	}
}

func printCapture(out io.Writer, res enroll.Result) {
	switch res.Outcome {
	case enroll.OutcomeAccumulated:
		fmt.Fprintf(out, "shot %d/%d for %s\n", res.Shot, res.Shots, res.Name)
	case enroll.OutcomeCommitted:
		fmt.Fprintf(out, "enrolled %s\n", res.Name)
	case enroll.OutcomeFailed:
		fmt.Fprintf(out, "enrollment failed: %v\n", res.Err)
	default:
		fmt.Fprintf(out, "capture ignored: %s\n", res.Reason)
	}
}
