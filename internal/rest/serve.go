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


// HTTP access to the filters. Raw RGBA requests run through the arena boundary,
// JSON sequence requests through the operator framework.
package rest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/klauspost/compress/zstd"

	"github.com/mlnoga/edgelab/internal"
	"github.com/mlnoga/edgelab/internal/arena"
	"github.com/mlnoga/edgelab/internal/boundary"
	"github.com/mlnoga/edgelab/internal/edge"
	"github.com/mlnoga/edgelab/internal/ops"
	_ "github.com/mlnoga/edgelab/internal/ops/filter" // registers the filter operators
	"github.com/mlnoga/edgelab/internal/pixels"
	"github.com/mlnoga/edgelab/web"
)

// Default upper limit for request bodies, after decompression
const DefaultMaxBodyBytes=256*1024*1024

const encodingZstd="zstd"

// Shared codecs for EncodeAll and DecodeAll, which are safe for concurrent use
var zstdEncoder *zstd.Encoder
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdEncoder, err=zstd.NewWriter(nil)
	if err!=nil { panic(fmt.Sprintf("zstd encoder: %v", err)) }
	zstdDecoder, err=zstd.NewReader(nil, zstd.WithDecoderMaxMemory(DefaultMaxBodyBytes))
	if err!=nil { panic(fmt.Sprintf("zstd decoder: %v", err)) }
}

type Server struct {
	Boundary     *boundary.Boundary
	Log          io.Writer
	MaxBodyBytes int64
}

func NewServer(b *boundary.Boundary, log io.Writer) *Server {
	return &Server{Boundary: b, Log: log, MaxBodyBytes: DefaultMaxBodyBytes}
}

// Builds the routes. Request logs go to the server log
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(s.Log), gin.Recovery())
	r.GET("/", getIndex)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET ("/ping",       getPing)
			v1.GET ("/memory",     s.getMemory)
			v1.GET ("/operators",  getOperators)
			v1.POST("/filter/:op", s.postFilter)
			v1.POST("/sequence",   s.postSequence)
		}
	}
	return r
}

// Listens and serves on the given address, e.g. ":8080"
func Serve(addr string, b *boundary.Boundary) error {
	s:=NewServer(b, internal.LogWriter())
	internal.LogPrintf("Listening on %s\n", addr)
	return s.Router().Run(addr)
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func (s *Server) getMemory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"allocatedMB": s.Boundary.AllocatedMemoryMB(),
		"peakMB":      s.Boundary.Arena.PeakMB(),
		"arena":       s.Boundary.Arena.Stats(),
	})
}

func getOperators(c *gin.Context) {
	types:=ops.OperatorTypes()
	sort.Strings(types)
	c.JSON(http.StatusOK, gin.H{"operators": types})
}

// Maps library errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, pixels.ErrInvalidConfiguration): return http.StatusBadRequest
	case errors.Is(err, pixels.ErrContractViolation):    return http.StatusUnprocessableEntity
	case errors.Is(err, arena.ErrAllocationFailure):     return http.StatusInsufficientStorage
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// Reads the request body up to the size limit, decompressing zstd if so declared
func (s *Server) readBody(c *gin.Context) ([]byte, error) {
	data, err:=io.ReadAll(io.LimitReader(c.Request.Body, s.MaxBodyBytes+1))
	if err!=nil { return nil, err }
	if int64(len(data))>s.MaxBodyBytes {
		return nil, fmt.Errorf("%w: request body exceeds %d bytes", pixels.ErrContractViolation, s.MaxBodyBytes)
	}
	if strings.EqualFold(strings.TrimSpace(c.GetHeader("Content-Encoding")), encodingZstd) {
		data, err=zstdDecoder.DecodeAll(data, nil)
		if err!=nil { return nil, fmt.Errorf("%w: zstd body: %s", pixels.ErrContractViolation, err.Error()) }
		if int64(len(data))>s.MaxBodyBytes {
			return nil, fmt.Errorf("%w: decompressed body exceeds %d bytes", pixels.ErrContractViolation, s.MaxBodyBytes)
		}
	}
	return data, nil
}

func acceptsZstd(c *gin.Context) bool {
	for _, enc:=range strings.Split(c.GetHeader("Accept-Encoding"), ",") {
		if name, _, _:=strings.Cut(strings.TrimSpace(enc), ";"); strings.EqualFold(name, encodingZstd) {
			return true
		}
	}
	return false
}

// Writes raw RGBA, zstd compressed if the client accepts it
func writePixels(c *gin.Context, width, height int, pix []byte) {
	c.Header("X-Image-Width",  strconv.Itoa(width))
	c.Header("X-Image-Height", strconv.Itoa(height))
	if acceptsZstd(c) {
		c.Header("Content-Encoding", encodingZstd)
		pix=zstdEncoder.EncodeAll(pix, make([]byte, 0, len(pix)/2))
	}
	c.Data(http.StatusOK, "application/octet-stream", pix)
}

func queryInt(c *gin.Context, key string) (int, error) {
	v, err:=strconv.Atoi(c.Query(key))
	if err!=nil { return 0, fmt.Errorf("%w: query parameter %s=%q", pixels.ErrContractViolation, key, c.Query(key)) }
	return v, nil
}

func queryFloat(c *gin.Context, key string, def float64) (float64, error) {
	s, ok:=c.GetQuery(key)
	if !ok || s=="" { return def, nil }
	v, err:=strconv.ParseFloat(s, 64)
	if err!=nil { return 0, fmt.Errorf("%w: query parameter %s=%q", pixels.ErrInvalidConfiguration, key, s) }
	return v, nil
}

// A filter applied to an arena region of the given dimensions
type regionFilter func(b *boundary.Boundary, addr arena.Address, width, height int) error

// Resolves a filter name and its query parameters into a region filter
func filterFor(c *gin.Context, op string) (regionFilter, error) {
	switch op {
	case "grayscale": return (*boundary.Boundary).Grayscale, nil
	case "sepia":     return (*boundary.Boundary).Sepia, nil
	case "blur":      return (*boundary.Boundary).GaussianBlur, nil
	case "sobel":
		switch strings.ToLower(c.DefaultQuery("mode", "adaptive")) {
		case "adaptive":
			p, err:=queryFloat(c, "percentile", edge.DefaultPercentile)
			if err!=nil { return nil, err }
			return func(b *boundary.Boundary, addr arena.Address, w, h int) error {
				return b.EdgeDetectionSobelAdaptive(addr, w, h, p)
			}, nil
		case "fixed", "legacy":
			return (*boundary.Boundary).EdgeDetectionSobel, nil
		}
		return nil, fmt.Errorf("%w: sobel mode %q", pixels.ErrInvalidConfiguration, c.Query("mode"))
	case "canny":
		if _, legacy:=c.GetQuery("sigma"); legacy {
			sigma, err:=queryFloat(c, "sigma", 0)
			if err!=nil { return nil, err }
			high, err:=queryFloat(c, "highPercentile", 0)
			if err!=nil { return nil, err }
			low, err:=queryFloat(c, "lowRatio", 0)
			if err!=nil { return nil, err }
			return func(b *boundary.Boundary, addr arena.Address, w, h int) error {
				return b.EdgeDetectionCannyLegacy(addr, w, h, high, low, sigma)
			}, nil
		}
		strength, stroke:=c.Query("strength"), c.Query("stroke")
		return func(b *boundary.Boundary, addr arena.Address, w, h int) error {
			return b.EdgeDetectionCannyStrengthStroke(addr, w, h, strength, stroke)
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown filter %q", pixels.ErrInvalidConfiguration, op)
}

// Filters a raw RGBA body of width x height pixels. The pixels are staged in an arena region,
// processed in place and returned in the same layout
func (s *Server) postFilter(c *gin.Context) {
	filter, err:=filterFor(c, c.Param("op"))
	if err!=nil { abortWithError(c, statusFor(err), err); return }
	width, err:=queryInt(c, "width")
	if err!=nil { abortWithError(c, statusFor(err), err); return }
	height, err:=queryInt(c, "height")
	if err!=nil { abortWithError(c, statusFor(err), err); return }
	data, err:=s.readBody(c)
	if err!=nil { abortWithError(c, statusFor(err), err); return }
	if err:=pixels.ValidateDims(len(data), width, height); err!=nil { abortWithError(c, statusFor(err), err); return }

	size:=len(data)
	addr, growth, err:=s.Boundary.AllocWithGrowth(size)
	if err!=nil { abortWithError(c, statusFor(err), err); return }
	defer s.Boundary.Free(addr, size)
	if growth!=nil {
		fmt.Fprintf(s.Log, "arena grew from %d to %d bytes\n", growth.PreviousSize, growth.NewSize)
	}

	if err:=s.Boundary.Arena.With(addr, size, func(mem []byte) error { copy(mem, data); return nil }); err!=nil {
		abortWithError(c, statusFor(err), err); return
	}
	if err:=filter(s.Boundary, addr, width, height); err!=nil {
		abortWithError(c, statusFor(err), err); return
	}
	if err:=s.Boundary.Arena.With(addr, size, func(mem []byte) error { copy(data, mem); return nil }); err!=nil {
		abortWithError(c, statusFor(err), err); return
	}
	writePixels(c, width, height, data)
}


type sequenceRequest struct {
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Pixels    []byte            `json:"pixels"`   // base64 in JSON
	Sequence  *ops.OpSequence   `json:"sequence"`
}

type sequenceResponse struct {
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Pixels    []byte            `json:"pixels"`
	Log       string            `json:"log"`
}

// Rejects operators which touch the file system
func checkRemoteSafe(op ops.Operator) error {
	switch o:=op.(type) {
	case *ops.OpLoad, *ops.OpSave:
		return fmt.Errorf("%w: operator %s is not available remotely", pixels.ErrInvalidConfiguration, op.GetType())
	case *ops.OpSequence:
		for _, step:=range o.Steps {
			if err:=checkRemoteSafe(step); err!=nil { return err }
		}
	}
	return nil
}

// Applies a JSON operator sequence to the posted pixels. The operator log is returned with the result
func (s *Server) postSequence(c *gin.Context) {
	data, err:=s.readBody(c)
	if err!=nil { abortWithError(c, statusFor(err), err); return }
	var req sequenceRequest
	if err:=binding.JSON.BindBody(data, &req); err!=nil {
		if !errors.Is(err, pixels.ErrInvalidConfiguration) { err=fmt.Errorf("%w: %s", pixels.ErrInvalidConfiguration, err.Error()) }
		abortWithError(c, statusFor(err), err); return
	}
	if req.Sequence==nil {
		err:=fmt.Errorf("%w: missing sequence", pixels.ErrInvalidConfiguration)
		abortWithError(c, statusFor(err), err); return
	}
	if err:=checkRemoteSafe(req.Sequence); err!=nil { abortWithError(c, statusFor(err), err); return }
	b, err:=pixels.Wrap(req.Pixels, req.Width, req.Height)
	if err!=nil { abortWithError(c, statusFor(err), err); return }

	var log bytes.Buffer
	ctx:=ops.NewContext(&log)
	if err:=ops.ApplyInPlace(req.Sequence, b, ctx); err!=nil {
		abortWithError(c, statusFor(err), err); return
	}
	c.JSON(http.StatusOK, sequenceResponse{Width: b.Width, Height: b.Height, Pixels: b.Pix, Log: log.String()})
}
