// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Serves the .trs trace sets of a directory and runs attacks on them.
//
// GET  /tracesets             names of the trace sets, long-polls for changes unless wait=false
// GET  /data/:set             header of a trace set
// GET  /data/:set/:trace      one trace
// POST /attack/:set           runs the YAML attack config in the body, scores=true adds score rows
// GET  /progress              long-polls for the next evolution point of a running attack
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/gosca"
	"github.com/google/gosca/attack"
	"github.com/google/gosca/util"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	portFlag = flag.Int("port", 8080, "Server HTTP port number")
	dirFlag  = flag.String("dir", "traces", "Directory of the trace sets to serve")
)

const (
	trsExt = ".trs"
)

type TraceSetInfo struct {
	Traces      int     `json:"Traces"`
	Samples     int     `json:"Samples"`
	Coding      string  `json:"Coding"`
	DataSpace   int     `json:"DataSpace"`
	TitleSpace  int     `json:"TitleSpace"`
	Title       string  `json:"Title"`
	Description string  `json:"Description"`
	LabelX      string  `json:"LabelX"`
	LabelY      string  `json:"LabelY"`
	ScaleX      float32 `json:"ScaleX"`
	ScaleY      float32 `json:"ScaleY"`
}

type TraceData struct {
	Id      int       `json:"Id"`
	Title   string    `json:"Title"`
	Data    string    `json:"Data"`
	Samples []float64 `json:"Samples"`
}

// One distinguisher's result. Scores are candidates x samples, NaN as null.
type ResultData struct {
	*attack.Result
	Error  string       `json:"error,omitempty"`
	Scores [][]*float64 `json:"scores,omitempty"`
}

type AttackData struct {
	Results   []ResultData            `json:"results,omitempty"`
	Evolution []attack.EvolutionPoint `json:"evolution,omitempty"`
}

type server struct {
	dir string
	// Notified of trace set changes in dir.
	watch *util.Broker
	// Notified of every evolution point.
	progress    *util.Broker
	pollTimeout time.Duration
}

func newServer(dir string) *server {
	return &server{
		dir:         dir,
		watch:       util.NewBroker(),
		progress:    util.NewBroker(),
		pollTimeout: 5 * time.Minute,
	}
}

func (s *server) start() {
	go s.watch.Start()
	go s.progress.Start()
}

func (s *server) stop() {
	s.watch.Stop()
	s.progress.Stop()
}

func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Dir(filepath.Dir(filename))
}

func traceSetsDirectory() string {
	if filepath.IsAbs(*dirFlag) {
		return *dirFlag
	}
	return path.Join(projectRoot(), *dirFlag)
}

// A go-routine that waits for directory changes.
// Notifies changes by publishing a message via broker.
func watchDirectoryChanges(dir string, broker *util.Broker) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		glog.Errorf("NewWatcher failed: %v", err)
		return
	}
	defer watcher.Close()

	err = watcher.Add(dir)
	if err != nil {
		glog.Errorf("watcher.Add failed: %v", err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				glog.Warning("watcher.Events is not ok. Aborting")
				return
			}
			glog.V(1).Infof("Watcher event: %v", event)
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if strings.HasSuffix(event.Name, trsExt) {
					broker.Publish(event)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				glog.Warning("watcher.Errors is not ok. Aborting")
				return
			}
			glog.Warning("Watcher error: ", err)
		}
	}
}

// Maps library errors to HTTP status codes.
func httpError(err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, gosca.ErrContract), errors.Is(err, gosca.ErrFormat):
		code = http.StatusBadRequest
	case errors.Is(err, gosca.ErrIndex), errors.Is(err, fs.ErrNotExist):
		code = http.StatusNotFound
	case errors.Is(err, gosca.ErrNumerical):
		code = http.StatusUnprocessableEntity
	}
	if code == http.StatusInternalServerError {
		glog.Errorf("Request failed: %v", err)
	}
	return echo.NewHTTPError(code, err.Error())
}

func (s *server) traceSetPath(name string) string {
	return filepath.Join(s.dir, filepath.Base(name)+trsExt)
}

func (s *server) openTraceSet(c echo.Context) (*gosca.TraceSet, error) {
	ts, err := gosca.OpenTraceSet(s.traceSetPath(c.Param("set")))
	if err != nil {
		return nil, httpError(err)
	}
	return ts, nil
}

// Returns list of trace set names in the directory.
func (s *server) listTraceSets(c echo.Context) error {
	if c.QueryParam("wait") != "false" {
		if _, ok := s.watch.Wait(c.Request().Context(), s.pollTimeout); !ok {
			glog.V(1).Infof("No trace set changes")
		}
	}
	files, err := filepath.Glob(filepath.Join(s.dir, "*"+trsExt))
	if err != nil {
		glog.Errorf("Glob failed: %v", err)
		return err
	}
	names := []string{}
	for _, f := range files {
		names = append(names, strings.TrimSuffix(filepath.Base(f), trsExt))
	}
	return c.JSON(http.StatusOK, names)
}

func (s *server) traceSetInfo(c echo.Context) error {
	ts, err := s.openTraceSet(c)
	if err != nil {
		return err
	}
	defer ts.Close()
	return c.JSON(http.StatusOK, TraceSetInfo{
		Traces:      ts.TraceCount,
		Samples:     ts.SampleCount,
		Coding:      ts.Coding.String(),
		DataSpace:   ts.DataSpace,
		TitleSpace:  ts.TitleSpace,
		Title:       ts.GlobalTitle,
		Description: ts.Description,
		LabelX:      ts.LabelX,
		LabelY:      ts.LabelY,
		ScaleX:      ts.ScaleX,
		ScaleY:      ts.ScaleY,
	})
}

func (s *server) trace(c echo.Context) error {
	i, err := strconv.Atoi(c.Param("trace"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid trace")
	}
	ts, err := s.openTraceSet(c)
	if err != nil {
		return err
	}
	defer ts.Close()
	t, err := ts.Trace(i)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, TraceData{i, t.Title, hex.EncodeToString(t.Data), t.Samples})
}

func nullable(S *mat.Dense) [][]*float64 {
	if S == nil {
		return nil
	}
	r, _ := S.Dims()
	rows := make([][]*float64, r)
	for k := range rows {
		row := S.RawRowView(k)
		rows[k] = make([]*float64, len(row))
		for u := range row {
			if !math.IsNaN(row[u]) {
				rows[k][u] = &row[u]
			}
		}
	}
	return rows
}

func (s *server) attack(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	cfg, err := attack.ParseConfig(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cfg.TraceSet = s.traceSetPath(c.Param("set"))
	a, err := attack.New(cfg)
	if err != nil {
		return httpError(err)
	}
	ts, err := s.openTraceSet(c)
	if err != nil {
		return err
	}
	defer ts.Close()

	if cfg.EvolutionStep > 0 {
		points, err := a.Evolve(ts, attack.EvolutionConfig{
			Step:   cfg.EvolutionStep,
			WarmUp: cfg.WarmUp,
			Progress: func(p attack.EvolutionPoint) {
				s.progress.Publish(p)
			},
		})
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, AttackData{Evolution: points})
	}

	data, O, err := a.Load(ts)
	if err != nil {
		return httpError(err)
	}
	results, err := a.Run(data, O)
	if err != nil {
		return httpError(err)
	}
	var out AttackData
	for _, r := range results {
		rd := ResultData{Result: r}
		if r.Err != nil {
			rd.Error = r.Err.Error()
		}
		if c.QueryParam("scores") == "true" {
			rd.Scores = nullable(r.Scores)
		}
		out.Results = append(out.Results, rd)
	}
	return c.JSON(http.StatusOK, out)
}

// Returns the next evolution point, or no content if none arrives in time.
func (s *server) nextProgress(c echo.Context) error {
	msg, ok := s.progress.Wait(c.Request().Context(), s.pollTimeout)
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, msg)
}

func (s *server) routes(e *echo.Echo) {
	e.GET("/tracesets", s.listTraceSets)
	e.GET("/data/:set", s.traceSetInfo)
	e.GET("/data/:set/:trace", s.trace)
	e.POST("/attack/:set", s.attack)
	e.GET("/progress", s.nextProgress)
}

func main() {
	flag.Parse()
	defer glog.Flush()

	s := newServer(traceSetsDirectory())
	s.start()
	defer s.stop()
	go watchDirectoryChanges(s.dir, s.watch)

	e := echo.New()
	s.routes(e)
	glog.Fatal(e.Start(fmt.Sprintf(":%d", *portFlag)))
}
