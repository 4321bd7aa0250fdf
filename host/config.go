package host

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// Config is the configuration of the host, parsed from the command line.
type Config struct {
	Program string
	Backend string // "compiled" or "interp"
	Voices  int
	Dynamic bool
	Group   bool

	MIDI       bool
	MIDIInput  string
	OSC        bool
	OSCPort    int
	OSCOutPort int
	Xmit       bool
	HTTP       bool
	HTTPPort   int
	NoGUI      bool

	Audio        string // "oto", "portaudio" or "dummy"
	SampleRate   int
	BufferFrames int

	RCFile  string
	Verbose bool
	Version bool

	// DSPPath is the patch file, the last argument.
	DSPPath string
	// CompilerArgs are the arguments not recognized as host flags, forwarded
	// verbatim to the backend.
	CompilerArgs []string
}

const (
	DefaultOSCPort      = 5510
	DefaultOSCOutPort   = 5511
	DefaultHTTPPort     = 5510
	DefaultSampleRate   = 44100
	DefaultBufferFrames = 512
)

var (
	// ErrUsage is returned by ParseArgs when the usage was printed: on -h,
	// -help, or when the backend choice is missing or ambiguous.
	ErrUsage    = errors.New("usage")
	ErrNoVoices = errors.New("-nvoices must be a positive integer")
	ErrNoDSP    = errors.New("no DSP file given")
)

// flags registers the flags of the host, except the backend choice, bound to
// c.
func (c *Config) flags(fs *flag.FlagSet) {
	fs.IntVar(&c.Voices, "nvoices", 0, "number of voices, at least 1")
	fs.BoolVar(&c.Dynamic, "dynamic", true, "render only the voices that are playing")
	fs.BoolVar(&c.Group, "group", true, "control all voices with one set of parameters")
	fs.BoolVar(&c.MIDI, "midi", false, "enable the MIDI surface")
	fs.StringVar(&c.MIDIInput, "midi-input", "", "connect MIDI input to matching device name `prefix`")
	fs.BoolVar(&c.OSC, "osc", false, "enable the OSC surface")
	fs.IntVar(&c.OSCPort, "osc-port", DefaultOSCPort, "UDP `port` of the OSC surface")
	fs.IntVar(&c.OSCOutPort, "osc-outport", DefaultOSCOutPort, "UDP `port` OSC replies are sent to")
	fs.BoolVar(&c.Xmit, "xmit", false, "send every parameter change over OSC")
	fs.BoolVar(&c.HTTP, "httpd", false, "enable the HTTP surface")
	fs.IntVar(&c.HTTPPort, "httpd-port", DefaultHTTPPort, "TCP `port` of the HTTP surface")
	fs.BoolVar(&c.NoGUI, "nogui", false, "run without a window, until interrupted")
	fs.StringVar(&c.Audio, "audio", "oto", "audio device: oto, portaudio or dummy")
	fs.IntVar(&c.SampleRate, "rate", DefaultSampleRate, "sample `rate` in Hz")
	fs.IntVar(&c.BufferFrames, "buffer", DefaultBufferFrames, "audio buffer size in `frames`")
	fs.StringVar(&c.RCFile, "rc", "", "parameter state `file`, default $HOME/.<program>-<dsp>rc")
	fs.BoolVar(&c.Verbose, "v", false, "log debug messages")
	fs.BoolVar(&c.Version, "version", false, "print version and exit")
}

// ParseArgs parses the command line arguments, excluding the program name.
// Host flags may come anywhere; every other flag, with the value following
// it, is forwarded to the backend. The last argument is the DSP file.
func ParseArgs(program string, args []string, output io.Writer) (Config, error) {
	c := Config{Program: program}
	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(output)
	var compiled, interp bool
	fs.BoolVar(&compiled, "compiled", false, "use the compiled backend")
	fs.BoolVar(&interp, "interp", false, "use the interpreter backend")
	c.flags(fs)
	fs.Usage = func() {
		fmt.Fprintf(output, "usage: %s [-compiled|-interp] -nvoices N [flags] [compiler options] file.yml\n", program)
		fs.PrintDefaults()
	}
	hostArgs, rest := splitArgs(fs, args)
	if err := fs.Parse(hostArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return c, ErrUsage
		}
		return c, err
	}
	if len(rest) > 0 && !strings.HasPrefix(rest[len(rest)-1], "-") {
		c.DSPPath = rest[len(rest)-1]
		rest = rest[:len(rest)-1]
	}
	c.CompilerArgs = rest
	if c.Version {
		return c, nil
	}
	if compiled == interp {
		fs.Usage()
		return c, ErrUsage
	}
	c.Backend = "interp"
	if compiled {
		c.Backend = "compiled"
	}
	if c.Voices < 1 {
		return c, fmt.Errorf("%w, was %v", ErrNoVoices, c.Voices)
	}
	if c.DSPPath == "" {
		return c, ErrNoDSP
	}
	return c, nil
}

// splitArgs separates the host flags from the rest. A host flag that takes a
// value consumes the next argument unless written as -flag=value.
func splitArgs(fs *flag.FlagSet, args []string) (host, rest []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, hasValue := flagName(arg)
		f := fs.Lookup(name)
		if name == "h" || name == "help" {
			host = append(host, arg)
			continue
		}
		if f == nil {
			rest = append(rest, arg)
			continue
		}
		host = append(host, arg)
		if hasValue || isBoolFlag(f) {
			continue
		}
		if i+1 < len(args) {
			i++
			host = append(host, args[i])
		}
	}
	return host, rest
}

func flagName(arg string) (name string, hasValue bool) {
	if len(arg) < 2 || arg[0] != '-' {
		return "", false
	}
	name = strings.TrimPrefix(arg[1:], "-")
	if i := strings.IndexByte(name, '='); i >= 0 {
		return name[:i], true
	}
	return name, false
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}
