// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"time"
	"github.com/pbnjay/memory"

	el "github.com/mlnoga/edgelab/internal"
	"github.com/mlnoga/edgelab/internal/arena"
	"github.com/mlnoga/edgelab/internal/boundary"
	"github.com/mlnoga/edgelab/internal/compare"
	"github.com/mlnoga/edgelab/internal/convolve"
	"github.com/mlnoga/edgelab/internal/edge"
	"github.com/mlnoga/edgelab/internal/imageio"
	"github.com/mlnoga/edgelab/internal/ops"
	"github.com/mlnoga/edgelab/internal/ops/filter"
	"github.com/mlnoga/edgelab/internal/rest"
)

const version = "0.3.0"

var totalMiBs=memory.TotalMemory()/1024/1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out     = flag.String("out", "out.png", "save output to `file`. Format follows the suffix: png, jpg, tif, bmp or gif")
var log     = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var quality = flag.Int("quality", imageio.DefaultJPEGQuality, "JPEG output quality in [1,100]")
var threads = flag.Int("threads", 0, "number of threads for row parallelism, 0=one per logical core")
var seqFile = flag.String("seq", "", "read operator sequence from JSON `file` for the seq command")
var dumpSeq = flag.Bool("dumpSeq", false, "print the effective operator sequence as JSON before running it")

var integer    = flag.Bool("integer", false, "grayscale: use the (77R+150G+29B)>>8 integer luma approximation")
var blurSize   = flag.Int("blurSize", convolve.DefaultBlurSize, "blur: kernel size in taps, odd")
var blurSigma  = flag.Float64("blurSigma", convolve.DefaultBlurSigma, "blur: gaussian sigma in pixels")
var sobelMode  = flag.String("sobelMode", "adaptive", "sobel: threshold mode, adaptive or fixed")
var percentile = flag.Float64("percentile", edge.DefaultPercentile, "sobel: adaptive threshold percentile in (0,1)")
var threshold  = flag.Int("threshold", edge.DefaultFixedThreshold, "sobel: fixed threshold on the squared gradient magnitude")
var strength   = flag.String("strength", "medium", "canny: detection strength, low, medium or high")
var stroke     = flag.String("stroke", "medium", "canny: edge stroke, thin, medium or thick")
var sigma      = flag.Float64("sigma", 0, "canny: legacy blur sigma selecting the strength, 0=use -strength")

var addr       = flag.String("addr", ":8080", "serve: listen on `address`")
var arenaPages = flag.Int("arenaPages", arena.DefaultInitialPages, "serve: initial arena size in 64 KiB pages")
var arenaLimit = flag.Int("arenaLimit", 0, "serve: arena capacity limit in MiB, 0=a quarter of physical memory")
var chroot     = flag.String("chroot", "", "serve: change filesystem root to `dir` before serving, requires root")
var setuid     = flag.Int("setuid", -1, "serve: change user ID before serving, -1=keep")

func main() {
	logWriter:=el.LogWriter()
	start:=time.Now()
	flag.Usage=func(){
 	    fmt.Fprintf(os.Stdout, `Edgelab Copyright (c) 2020-2025 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (grayscale|sepia|blur|sobel|canny|seq|compare|serve|legal|version) (img0.png ... imgn.png)

Commands:
  grayscale Convert image to grayscale
  sepia     Apply sepia toning
  blur      Gaussian blur
  sobel     Sobel edge detection
  canny     Canny edge detection
  seq       Run the JSON operator sequence given with -seq, optionally on an input image
  compare   Compare two images of identical size: MSE, PSNR, per-channel error and CIE76 delta E
  serve     Serve the filters over HTTP
  legal     Show license and attribution information
  version   Show version information

Flags:
`, os.Args[0])
	    flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log=="%auto" {
		if *out!="" {
			*log=strings.TrimSuffix(*out, filepath.Ext(*out))+".log"
		} else {
			*log=""
		}
	}

	args:=flag.Args()
	if len(args)<1 {
		flag.Usage()
		return
	}
	// only commands producing an output file log into a file by default
	switch args[0] {
	case "grayscale", "sepia", "blur", "sobel", "canny", "seq":
	default:
		if !isFlagSet("log") { *log="" }
	}
	if *log!="" {
		err:=el.LogAlsoToFile(*log)
		if err!=nil { el.LogFatalf("Unable to open logfile '%s'\n", *log) }
	}

	el.SetMaxThreads(*threads)

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			el.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			el.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	var err error
	switch args[0] {
	case "grayscale", "sepia", "blur", "sobel", "canny":
		var op ops.Operator
		op, err=operatorFromFlags(args[0])
		if err==nil { err=cmdFilter(op, args[1:], logWriter) }

	case "seq":
		err=cmdSeq(args[1:], logWriter)

	case "compare":
		err=cmdCompare(args[1:], logWriter)

	case "serve":
		err=cmdServe()

	case "legal":
		cmdLegal()
		return

	case "version":
		fmt.Fprintf(logWriter, "Edgelab version %s\n", version)
		fmt.Fprintf(logWriter, "CPU %s\n", el.CPUBanner())
		fmt.Fprintf(logWriter, "Physical memory %d MiB\n", totalMiBs)
		return

	case "help", "?":
		flag.Usage()
		return

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	now:=time.Now()
	elapsed:=now.Sub(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			el.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		el.ClearPools() // also triggers GC for up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f,0); err != nil {
			el.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		el.LogSync()
		os.Exit(-1)
	}
	el.LogSync()
}

func isFlagSet(name string) bool {
	set:=false
	flag.Visit(func(f *flag.Flag) { if f.Name==name { set=true } })
	return set
}

// Builds the operator for a single filter command from the command line flags
func operatorFromFlags(cmd string) (ops.Operator, error) {
	switch cmd {
	case "grayscale":
		return filter.NewOpGrayscale(*integer), nil
	case "sepia":
		return filter.NewOpSepiaDefault(), nil
	case "blur":
		if _, err:=convolve.GaussianKernel1D(*blurSize, *blurSigma); err!=nil { return nil, err }
		return filter.NewOpBlur(*blurSize, *blurSigma), nil
	case "sobel":
		mode, err:=edge.ParseSobelMode(*sobelMode)
		if err!=nil { return nil, err }
		o:=edge.SobelOptions{Mode: mode, Percentile: *percentile, Threshold: int32(*threshold)}
		if err:=o.Validate(); err!=nil { return nil, err }
		return filter.NewOpSobel(o), nil
	case "canny":
		s, err:=edge.ParseStrength(*strength)
		if err!=nil { return nil, err }
		k, err:=edge.ParseStroke(*stroke)
		if err!=nil { return nil, err }
		op:=filter.NewOpCanny(edge.CannyOptions{Strength: s, Stroke: k})
		op.Sigma=*sigma
		return op, nil
	}
	return nil, fmt.Errorf("unknown filter '%s'", cmd)
}

// Applies a single operator to one input file and saves the result
func cmdFilter(op ops.Operator, args []string, logWriter io.Writer) error {
	if len(args)!=1 { return fmt.Errorf("%s needs exactly one input file, got %d", op.GetType(), len(args)) }
	save:=ops.NewOpSave(*out)
	save.Quality=*quality
	return runSequence(ops.NewOpSequence(ops.NewOpLoad(args[0]), op, save), logWriter)
}

// Loads a sequence from the -seq file. With an input file argument, loads it first and saves to -out last
func cmdSeq(args []string, logWriter io.Writer) error {
	if *seqFile=="" { return fmt.Errorf("seq needs a sequence file, see -seq") }
	data, err:=os.ReadFile(*seqFile)
	if err!=nil { return err }
	loaded:=ops.NewOpSequenceDefault()
	if err:=json.Unmarshal(data, loaded); err!=nil { return fmt.Errorf("parsing %s: %w", *seqFile, err) }

	seq:=loaded
	switch len(args) {
	case 0:
	case 1:
		save:=ops.NewOpSave(*out)
		save.Quality=*quality
		seq=ops.NewOpSequence(ops.NewOpLoad(args[0]), loaded, save)
	default:
		return fmt.Errorf("seq takes at most one input file, got %d", len(args))
	}
	return runSequence(seq, logWriter)
}

func runSequence(seq *ops.OpSequence, logWriter io.Writer) error {
	if *dumpSeq {
		m, err:=json.MarshalIndent(seq, "", "  ")
		if err!=nil { return err }
		fmt.Fprintf(logWriter, "Running sequence:\n%s\n", string(m))
	}
	c:=ops.NewContext(logWriter)
	fmt.Fprintf(logWriter, "Using %d threads, %d MiB physical memory\n", c.MaxThreads, c.MemoryMB)
	_, err:=seq.Apply(nil, c)
	return err
}

func cmdCompare(args []string, logWriter io.Writer) error {
	if len(args)!=2 { return fmt.Errorf("compare needs exactly two input files, got %d", len(args)) }
	a, err:=imageio.ReadFile(args[0])
	if err!=nil { return err }
	b, err:=imageio.ReadFile(args[1])
	if err!=nil { return err }
	r, err:=compare.Compare(a, b)
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s vs %s: %s\n", args[0], args[1], r.String())
	return nil
}

func cmdServe() error {
	limit:=arena.DefaultLimit()
	if *arenaLimit>0 { limit=*arenaLimit*1024*1024 }
	a, err:=arena.New(*arenaPages, limit)
	if err!=nil { return err }
	if err:=rest.MakeSandbox(*chroot, *setuid); err!=nil { return err }
	fmt.Fprintf(el.LogWriter(), "Arena of %d bytes, limit %d bytes. CPU %s\n", a.Size(), limit, el.CPUBanner())
	return rest.Serve(*addr, boundary.New(a))
}
