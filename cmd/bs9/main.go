// Command bs9 is a two-pass cross-assembler for the Motorola 6809 and
// Hitachi 6309 microprocessors. It reads a .as9 source file, emits a
// listing and symbol cross-reference, and writes any binary/S-record
// images registered by STORE directives.
//
// The single-command cobra wiring here is grounded on the teacher
// pack's oisee-z80-optimizer CLI (cmd/z80opt/main.go): one root
// command, pflag-backed flags bound to local variables, RunE
// returning an error cobra prints and turns into a non-zero exit.
// Unlike that tool's multi-subcommand shape, bs9 is a single-shot
// batch assembler, so there is exactly one command and no verbs.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/bs9/internal/asmerr"
	"github.com/beevik/bs9/internal/asmlog"
	"github.com/beevik/bs9/internal/listing"
	"github.com/beevik/bs9/internal/output"
	"github.com/beevik/bs9/internal/pass"
	"github.com/spf13/cobra"
)

// fileReader is the filesystem-backed pass.SourceReader the CLI uses
// to open the entry file and resolve INCLUDE targets relative to it.
type fileReader struct {
	stripHexDump bool
	dir          string
}

func (r fileReader) Open(name string) ([]string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.dir, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if r.stripHexDump {
		for i, l := range lines {
			lines[i] = stripHexDumpColumns(l)
		}
	}
	return lines, nil
}

// stripHexDumpColumns removes the leading "NNNN XX XX XX" listing
// columns a previously-written .lst file carries, so that file can be
// fed back in as source (-x).
func stripHexDumpColumns(line string) string {
	fields := strings.Fields(line)
	i := 0
	for i < len(fields) && i < 6 && isHexToken(fields[i]) {
		i++
	}
	if i == 0 {
		return line
	}
	idx := 0
	for n := 0; n < i; n++ {
		idx = strings.Index(line[idx:], fields[n]) + idx + len(fields[n])
	}
	return strings.TrimLeft(line[idx:], " \t")
}

func isHexToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789ABCDEFabcdef", c) {
			return false
		}
	}
	return true
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		debug      bool
		defineFlag []string
		foldCase   bool
		preset     int
		presetSet  bool
		motorola   bool
		lineNums   bool
		optimize   bool
		preprocess bool
		quiet      bool
		stripHex   bool
	)

	exitCode := 0

	cmd := &cobra.Command{
		Use:   "bs9 [flags] source[.as9]",
		Short: "Two-pass 6809/6309 cross-assembler",
		Args:  cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			presetSet = cmd.Flags().Changed("l")

			src := cmdArgs[0]
			if filepath.Ext(src) == "" {
				src = src + ".as9"
			}
			base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))

			defines, err := parseDefines(defineFlag)
			if err != nil {
				return err
			}

			dir := filepath.Dir(src)
			opts := &pass.Options{
				FoldCase:      foldCase,
				MotorolaSpace: motorola,
				Optimize:      optimize,
				LineNumbers:   lineNums,
				PresetByte:    preset,
				HasPreset:     presetSet,
				Defines:       defines,
				Loader: func(path string) ([]byte, error) {
					if !filepath.IsAbs(path) {
						path = filepath.Join(dir, path)
					}
					return os.ReadFile(path)
				},
			}

			reader := fileReader{stripHexDump: stripHex, dir: dir}
			s, err := pass.Assemble(filepath.Base(src), reader, 10, opts)
			if err != nil {
				return err
			}

			errs := s.Errors.All()
			if !quiet {
				fmt.Printf("bs9: %d error(s)\n", len(errs))
			}
			if len(errs) > 0 {
				asmerr.Print(os.Stderr, errs)
			}

			if lstFile, ferr := os.Create(base + ".lst"); ferr == nil {
				listing.Write(lstFile, s, lineNums)
				lstFile.Close()
			}

			if debug {
				if f, ferr := os.Create("Debug.lst"); ferr == nil {
					logger := asmlog.Logger{W: f, Enabled: true}
					logger.LogSection("assembly summary")
					logger.Log("errors: %d", len(errs))
					for _, row := range s.Listing {
						logger.LogBytes(row.PC, row.Bytes)
					}
					f.Close()
				}
			}

			if optimize {
				if f, ferr := os.Create(base + ".opt"); ferr == nil {
					for _, h := range s.Hints {
						fmt.Fprintln(f, h)
					}
					f.Close()
				}
			}

			if preprocess {
				// Only the file is created; no source text is written to it.
				if f, ferr := os.Create(base + ".pp"); ferr == nil {
					f.Close()
				}
			}

			for _, req := range s.Stores {
				if serr := writeStore(s, req); serr != nil {
					fmt.Fprintf(os.Stderr, "bs9: STORE %s: %v\n", req.Path, serr)
				}
			}

			exitCode = len(errs)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&debug, "d", "d", false, "enable debug trace output to Debug.lst")
	cmd.Flags().StringArrayVarP(&defineFlag, "D", "D", nil, "define a locked symbol: name=expr")
	cmd.Flags().BoolVarP(&foldCase, "i", "i", false, "fold symbols case-insensitively")
	cmd.Flags().IntVarP(&preset, "l", "l", 0, "preset the 64K ROM image to byte N (0-255)")
	cmd.Flags().BoolVarP(&motorola, "m", "m", false, "accept Motorola-style space-separated operands")
	cmd.Flags().BoolVarP(&lineNums, "n", "n", false, "prefix listing lines with source line numbers")
	cmd.Flags().BoolVarP(&optimize, "o", "o", false, "enable the peephole branch optimizer")
	cmd.Flags().BoolVarP(&preprocess, "p", "p", false, "create an empty basename.pp (macro-expanded source is not written)")
	cmd.Flags().BoolVarP(&quiet, "q", "q", false, "suppress the error-count summary line")
	cmd.Flags().BoolVarP(&stripHex, "x", "x", false, "strip leading hex-dump columns from source lines")

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

// parseDefines turns a list of "name=value" -D flags into a symbol
// map. Values are integers: decimal, $hex, or the 0x/0b/0o prefixes
// that ParseInt's base detection accepts; the evaluator's %binary and
// trailing-H forms are not accepted here.
func parseDefines(flags []string) (map[string]int, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(flags))
	for _, d := range flags {
		parts := strings.SplitN(d, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("-D requires name=value, got %q", d)
		}
		name := strings.TrimSpace(parts[0])
		valText := strings.TrimSpace(parts[1])
		valText = strings.TrimPrefix(valText, "$")
		base := 0
		if strings.HasPrefix(parts[1], "$") {
			base = 16
		}
		n, err := strconv.ParseInt(valText, base, 64)
		if err != nil {
			return nil, fmt.Errorf("-D %s: %v", d, err)
		}
		out[name] = int(n)
	}
	return out, nil
}

func writeStore(s *pass.State, req pass.StoreRequest) error {
	f, err := os.Create(req.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	switch req.Format {
	case "S19", "SREC":
		return output.WriteSRecord(f, &s.ROM, req.Start, req.Len, req.HasEntry, req.Entry)
	default:
		return output.WriteBIN(f, &s.ROM, req.Start, req.Len, req.HasEntry)
	}
}
