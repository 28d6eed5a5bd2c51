// Command polycalc reads polynomials from files and adds, multiplies,
// evaluates or prints them. Results go to stdout; progress logs go to stderr.
//
// Each input file holds one "<coefficient> <degree>" term per line. With
// -rpc the operation runs on a polyd instance instead of locally.
//
// Usage:
//
//	polycalc -a p.txt -b q.txt add
//	polycalc -a p.txt -x 2.5 evaluate
//	polycalc -a p.txt -format text print
//	polycalc -rpc localhost:9100 -a p.txt -b q.txt multiply
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/rpc"
	"github.com/rs/zerolog"
)

const defaultMaxTerms = 1_000_000

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	a, b    string
	x       float64
	rpcAddr string
	format  string
	timeout time.Duration
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("polycalc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.a, "a", "", "first polynomial file (- for stdin)")
	fs.StringVar(&opts.b, "b", "", "second polynomial file (- for stdin)")
	fs.Float64Var(&opts.x, "x", 0, "point at which to evaluate")
	fs.StringVar(&opts.rpcAddr, "rpc", "", "run on a polyd RPC endpoint (host:port) instead of locally")
	fs.StringVar(&opts.format, "format", "pretty", "output format: pretty or text")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Second, "overall time limit")
	silent := fs.Bool("silent", false, "disable logs and print only the result")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: polycalc [flags] add|multiply|evaluate|print")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	log := newLogger(stderr, *silent, *verbose)
	op := fs.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	out, err := execute(ctx, op, opts, stdin, log)
	if err != nil {
		log.Error().Err(err).Str("op", op).Msg("failed")
		if *silent {
			fmt.Fprintln(stderr, err)
		}
		var usage usageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	fmt.Fprintln(stdout, out)
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func newLogger(w io.Writer, silent, verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	level := zerolog.InfoLevel
	switch {
	case silent:
		level = zerolog.Disabled
	case verbose:
		level = zerolog.DebugLevel
	}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// backend runs operations either in process or over RPC.
type backend interface {
	add(ctx context.Context, req calculator.BinaryRequest) (calculator.Result, error)
	multiply(ctx context.Context, req calculator.BinaryRequest) (calculator.Result, error)
	evaluate(ctx context.Context, req calculator.EvaluateRequest) (calculator.EvaluateResult, error)
	render(ctx context.Context, req calculator.RenderRequest) (calculator.Result, error)
}

func execute(ctx context.Context, op string, opts options, stdin io.Reader, log zerolog.Logger) (string, error) {
	needsB := op == "add" || op == "multiply"
	switch op {
	case "add", "multiply", "evaluate", "print":
	default:
		return "", usageError(fmt.Sprintf("unknown operation %q", op))
	}
	if opts.a == "" {
		return "", usageError("-a is required")
	}
	if needsB && opts.b == "" {
		return "", usageError(op + " needs -b")
	}
	if opts.format != "pretty" && opts.format != "text" {
		return "", usageError(fmt.Sprintf("unknown format %q", opts.format))
	}

	a, err := readOperand(opts.a, stdin)
	if err != nil {
		return "", err
	}
	var b calculator.Operand
	if needsB {
		if b, err = readOperand(opts.b, stdin); err != nil {
			return "", err
		}
	}

	var be backend
	if opts.rpcAddr != "" {
		client, err := rpc.Dial(opts.rpcAddr, opts.timeout)
		if err != nil {
			return "", err
		}
		defer client.Close()
		be = remote{client: client}
		log.Debug().Str("addr", opts.rpcAddr).Msg("connected to polyd")
	} else {
		be = local{svc: calculator.New(calculator.Config{MaxTerms: defaultMaxTerms}, nil, nil, nil, nil)}
	}

	start := time.Now()
	var res calculator.Result
	switch op {
	case "add":
		res, err = be.add(ctx, calculator.BinaryRequest{A: a, B: b})
	case "multiply":
		res, err = be.multiply(ctx, calculator.BinaryRequest{A: a, B: b})
	case "print":
		res, err = be.render(ctx, calculator.RenderRequest{P: a})
	case "evaluate":
		ev, err := be.evaluate(ctx, calculator.EvaluateRequest{P: a, X: float32(opts.x)})
		if err != nil {
			return "", err
		}
		log.Info().Str("polynomial", ev.Polynomial).Float64("x", opts.x).Dur("took", time.Since(start)).Msg("evaluated")
		return strconv.FormatFloat(float64(ev.Value), 'g', -1, 32), nil
	}
	if err != nil {
		return "", err
	}
	log.Info().Str("op", op).Int("terms", res.TermCount).Int("degree", res.Degree).Dur("took", time.Since(start)).Msg("done")
	if opts.format == "text" {
		return trimNewline(res.Terms.Text()), nil
	}
	return res.Rendered, nil
}

func readOperand(path string, stdin io.Reader) (calculator.Operand, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return calculator.Operand{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return calculator.Operand{Text: string(data)}, nil
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		return s[:n-1]
	}
	return s
}

type local struct {
	svc *calculator.Service
}

func (l local) add(ctx context.Context, req calculator.BinaryRequest) (calculator.Result, error) {
	return l.svc.Add(ctx, req)
}

func (l local) multiply(ctx context.Context, req calculator.BinaryRequest) (calculator.Result, error) {
	return l.svc.Multiply(ctx, req)
}

func (l local) evaluate(ctx context.Context, req calculator.EvaluateRequest) (calculator.EvaluateResult, error) {
	return l.svc.Evaluate(ctx, req)
}

func (l local) render(ctx context.Context, req calculator.RenderRequest) (calculator.Result, error) {
	return l.svc.Render(ctx, req)
}

type remote struct {
	client *rpc.Client
}

func (r remote) add(ctx context.Context, req calculator.BinaryRequest) (calculator.Result, error) {
	var res calculator.Result
	err := r.client.CallContext(ctx, handler.MethodAdd, req, &res)
	return res, err
}

func (r remote) multiply(ctx context.Context, req calculator.BinaryRequest) (calculator.Result, error) {
	var res calculator.Result
	err := r.client.CallContext(ctx, handler.MethodMultiply, req, &res)
	return res, err
}

func (r remote) evaluate(ctx context.Context, req calculator.EvaluateRequest) (calculator.EvaluateResult, error) {
	var res calculator.EvaluateResult
	err := r.client.CallContext(ctx, handler.MethodEvaluate, req, &res)
	return res, err
}

func (r remote) render(ctx context.Context, req calculator.RenderRequest) (calculator.Result, error) {
	var res calculator.Result
	err := r.client.CallContext(ctx, handler.MethodRender, req, &res)
	return res, err
}
