// Package translator drives VM-to-Hack translation for files and
// directories. Every unit of one run goes through a single
// codegen.CodeWriter, in order, so generated labels stay unique across the
// whole output.
package translator

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"hackvm/pkg/asm"
	"hackvm/pkg/codegen"
	"hackvm/pkg/parser"
	"hackvm/pkg/utils"
)

const (
	SourceExt = ".vm"
	OutputExt = ".asm"
)

var (
	// ErrIO is the cause of errors reading sources or writing output.
	ErrIO = errors.New("i/o failure")
	// ErrNoSuchInput is returned when the input path does not exist.
	ErrNoSuchInput = errors.New("input does not exist")
	// ErrBadExtension is returned for a file input without the .vm extension.
	ErrBadExtension = errors.New("input is not a .vm file")
	// ErrNoSources is returned for a directory without .vm files.
	ErrNoSources = errors.New("no .vm files found")
)

// Bootstrap selects whether the SP/Sys.init prologue is emitted.
type Bootstrap int

const (
	BootstrapAuto Bootstrap = iota // directories only
	BootstrapOn
	BootstrapOff
)

// Unit is one source unit: its name qualifies static variables.
type Unit struct {
	Name   string
	Source io.Reader
}

// Result describes a finished translation.
type Result struct {
	Output       string
	Units        []string
	Instructions int
	Bootstrapped bool
}

type config struct {
	comments  bool
	bootstrap Bootstrap
	output    string
}

// Option configures Translate.
type Option func(*config)

// WithComments echoes every VM instruction into the output.
func WithComments(on bool) Option {
	return func(c *config) { c.comments = on }
}

// WithBootstrap overrides the default of bootstrapping directories only.
func WithBootstrap(b Bootstrap) Option {
	return func(c *config) { c.bootstrap = b }
}

// WithOutput writes to path instead of the default output name.
func WithOutput(path string) Option {
	return func(c *config) { c.output = path }
}

// Translate translates a .vm file to a sibling .asm file, or every .vm file
// in a directory to <dir>/<dirname>.asm. An existing output is overwritten.
// On failure the output file is removed.
func Translate(path string, opts ...Option) (Result, error) {
	cfg := newConfig(opts)
	in, err := resolve(path, cfg)
	if err != nil {
		return Result{}, err
	}

	output := cfg.output
	if output == "" {
		output, err = utils.OutputPath(path, in.isDir, OutputExt)
		if err != nil {
			return Result{}, ioFailure(err)
		}
	}

	return translateFiles(in.sources, output, in.bootstrap, cfg.comments)
}

// Assembly translates path like Translate but returns the assembly text
// instead of writing a file. WithOutput is ignored.
func Assembly(path string, opts ...Option) (string, Result, error) {
	cfg := newConfig(opts)
	in, err := resolve(path, cfg)
	if err != nil {
		return "", Result{}, err
	}

	var buf bytes.Buffer
	res, err := writeSources(&buf, in.sources, in.bootstrap, cfg.comments)
	if err != nil {
		return "", Result{}, err
	}
	return buf.String(), res, nil
}

// Program builds a runnable ROM image from path: .vm files and
// directories are translated like Assembly and then assembled, a .asm file
// is assembled as is. Assembly files are assumed to set up their own stack,
// so their Result reports Bootstrapped.
func Program(path string, opts ...Option) ([]uint16, Result, error) {
	var (
		code string
		res  Result
		err  error
	)
	if filepath.Ext(path) == OutputExt {
		src, rerr := os.ReadFile(path)
		if os.IsNotExist(rerr) {
			return nil, Result{}, errors.Wrapf(ErrNoSuchInput, "%s", path)
		}
		if rerr != nil {
			return nil, Result{}, ioFailure(rerr)
		}
		code, res = string(src), Result{Output: path, Bootstrapped: true}
	} else {
		code, res, err = Assembly(path, opts...)
		if err != nil {
			return nil, Result{}, err
		}
	}

	program, _, err := asm.Assemble(code)
	if err != nil {
		return nil, Result{}, errors.WithMessage(err, "assemble")
	}
	return program, res, nil
}

func newConfig(opts []Option) config {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

type input struct {
	sources   []string
	isDir     bool
	bootstrap bool
}

// resolve checks path and lists the sources to translate.
func resolve(path string, cfg config) (input, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return input{}, errors.Wrapf(ErrNoSuchInput, "%s", path)
	}
	if err != nil {
		return input{}, ioFailure(err)
	}

	if info.IsDir() {
		sources, err := FindSources(path)
		if err != nil {
			return input{}, err
		}
		return input{sources: sources, isDir: true, bootstrap: cfg.bootstrap != BootstrapOff}, nil
	}
	if filepath.Ext(path) != SourceExt {
		return input{}, errors.Wrapf(ErrBadExtension, "%s", path)
	}
	return input{sources: []string{path}, bootstrap: cfg.bootstrap == BootstrapOn}, nil
}

// FindSources lists the .vm files directly inside dir in lexical order.
func FindSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ioFailure(err)
	}
	var sources []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == SourceExt {
			sources = append(sources, filepath.Join(dir, e.Name()))
		}
	}
	if len(sources) == 0 {
		return nil, errors.Wrapf(ErrNoSources, "%s", dir)
	}
	sort.Strings(sources)
	return sources, nil
}

func translateFiles(sources []string, output string, bootstrap bool, comments bool) (res Result, err error) {
	f, err := os.Create(output)
	if err != nil {
		return Result{}, ioFailure(err)
	}
	defer func() {
		if f != nil {
			f.Close()
		}
		if err != nil {
			os.Remove(output)
		}
	}()

	bw := bufio.NewWriter(f)
	res, err = writeSources(bw, sources, bootstrap, comments)
	if err != nil {
		return Result{}, err
	}

	if err := bw.Flush(); err != nil {
		return Result{}, ioFailure(err)
	}
	cerr := f.Close()
	f = nil
	if cerr != nil {
		return Result{}, ioFailure(cerr)
	}

	res.Output = output
	return res, nil
}

// writeSources translates the source files, in order, through one
// CodeWriter.
func writeSources(w io.Writer, sources []string, bootstrap bool, comments bool) (Result, error) {
	var res Result
	cw := codegen.NewCodeWriter(w, codegen.WithComments(comments))

	if bootstrap {
		if err := cw.WriteBootstrap(); err != nil {
			return Result{}, ioFailure(err)
		}
	}

	for _, src := range sources {
		name := utils.UnitName(src)
		if err := translateFile(cw, name, src); err != nil {
			return Result{}, err
		}
		res.Units = append(res.Units, name)
	}

	res.Instructions = cw.Emitted()
	res.Bootstrapped = bootstrap
	return res, nil
}

func translateFile(cw *codegen.CodeWriter, name, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return ioFailure(err)
	}
	defer in.Close()

	if err := TranslateUnit(cw, Unit{Name: name, Source: in}); err != nil {
		return errors.WithMessage(err, filepath.Base(path))
	}
	return nil
}

// TranslateUnit reads u to the end and writes its assembly through cw,
// stopping at the first error.
func TranslateUnit(cw *codegen.CodeWriter, u Unit) error {
	cw.SetUnit(u.Name)
	r := parser.NewReader(u.Source)
	for r.Next() {
		if err := cw.Write(r.Instruction()); err != nil {
			return classify(err)
		}
	}
	if err := r.Err(); err != nil {
		return classify(err)
	}
	return nil
}

// TranslateUnits writes the assembly for units to w, in order, through one
// CodeWriter, optionally preceded by the bootstrap.
func TranslateUnits(w io.Writer, units []Unit, bootstrap bool, opts ...codegen.Option) (*codegen.CodeWriter, error) {
	cw := codegen.NewCodeWriter(w, opts...)
	if bootstrap {
		if err := cw.WriteBootstrap(); err != nil {
			return cw, ioFailure(err)
		}
	}
	for _, u := range units {
		if err := TranslateUnit(cw, u); err != nil {
			return cw, errors.WithMessage(err, u.Name)
		}
	}
	return cw, nil
}

// classify keeps translation errors as they are and turns everything else
// into an ErrIO failure.
func classify(err error) error {
	switch errors.Cause(err) {
	case parser.ErrUnknownCommand, parser.ErrMalformedOperand, codegen.ErrInvalidSegment:
		return err
	}
	return ioFailure(err)
}

func ioFailure(err error) error {
	return errors.Wrapf(ErrIO, "%v", err)
}
