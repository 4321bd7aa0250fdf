package vm

import (
	"log/slog"
	"strconv"

	"github.com/vsariola/polyhost"
)

// Options are the compiler options shared by both backends.
type Options struct {
	// VectorSize is the number of samples processed at once by the compiled
	// backend. The interpreter accepts it but always runs sample by sample.
	VectorSize int
	// Seed is the seed of the noise generators.
	Seed uint32
	// Name overrides the name of the patch, which is the root of the
	// parameter tree.
	Name string
	// Double is accepted for compatibility; the engines accumulate in float64
	// where it matters.
	Double bool
}

const (
	DefaultVectorSize = 32
	MaxVectorSize     = 4096
)

// DefaultOptions returns the options used when no compiler options are given.
func DefaultOptions() Options {
	return Options{VectorSize: DefaultVectorSize, Seed: 1}
}

// ParseOptions parses the compiler options: "-vs n", "-seed n", "-cn name" and
// "-double". Anything else is a syntax error; an out of range vector size is a
// resource error.
func ParseOptions(args []string) (Options, error) {
	o := DefaultOptions()
	for i := 0; i < len(args); i++ {
		arg := args[i]
		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", polyhost.Errorf(polyhost.KindSyntax, "compiler option %v needs a value", arg)
			}
			i++
			return args[i], nil
		}
		switch arg {
		case "-vs":
			s, err := value()
			if err != nil {
				return o, err
			}
			vs, err := strconv.Atoi(s)
			if err != nil {
				return o, polyhost.Errorf(polyhost.KindSyntax, "invalid vector size %q", s)
			}
			if vs < 1 || vs > MaxVectorSize {
				return o, polyhost.Errorf(polyhost.KindResource, "vector size %v out of range 1..%v", vs, MaxVectorSize)
			}
			o.VectorSize = vs
		case "-seed":
			s, err := value()
			if err != nil {
				return o, err
			}
			seed, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				return o, polyhost.Errorf(polyhost.KindSyntax, "invalid seed %q", s)
			}
			o.Seed = uint32(seed)
		case "-cn":
			s, err := value()
			if err != nil {
				return o, err
			}
			o.Name = s
		case "-double":
			o.Double = true
		default:
			return o, polyhost.Errorf(polyhost.KindSyntax, "unknown compiler option %q", arg)
		}
	}
	return o, nil
}

// BackendNames lists the names accepted by Backend.
var BackendNames = []string{"compiled", "interp"}

// Backend returns the backend with the given name, or a CompilationError of
// kind KindBackendUnavailable.
func Backend(name string, logger *slog.Logger) (polyhost.Backend, error) {
	switch name {
	case "compiled":
		return Compiled{Logger: logger}, nil
	case "interp":
		return Interpreter{Logger: logger}, nil
	}
	return nil, polyhost.Errorf(polyhost.KindBackendUnavailable, "no backend named %q", name)
}

func logOptions(logger *slog.Logger, backend string, o Options) {
	if logger == nil {
		return
	}
	if o.Double {
		logger.Info("running in double", "backend", backend)
	}
	logger.Debug("compiler options", "backend", backend, "vs", o.VectorSize, "seed", o.Seed)
}
