// Command nx-fatdrived is a read-only HTTP introspection surface over a
// mounted USB Mass Storage FAT volume: GET /status, GET /stat?path=, and
// GET /fsstats. Grounded on the teacher's runAPIServer
// (cmd/driver/hasher-host/main.go) for the gin.New/gin.Recovery router
// setup and graceful-shutdown-on-signal shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ischeinkman/nx-fatdrive/capi"
	"github.com/ischeinkman/nx-fatdrive/internal/diag"
)

// StatusResponse is GET /status's body.
type StatusResponse struct {
	Mounted string  `json:"mounted"`
	Ready   bool    `json:"ready"`
	Host    hostDTO `json:"host"`
}

type hostDTO struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	Platform       string  `json:"platform"`
	GoVersion      string  `json:"go_version"`
}

// StatResponse is GET /stat?path='s body.
type StatResponse struct {
	Name        string `json:"name"`
	LengthBytes uint64 `json:"length_bytes"`
	Type        string `json:"type"`
}

// FsStatsResponse is GET /fsstats's body.
type FsStatsResponse struct {
	ClusterSize   uint32 `json:"cluster_size"`
	FreeClusters  uint32 `json:"free_clusters"`
	TotalClusters uint32 `json:"total_clusters"`
}

// ErrorResponse is the body returned for any non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  uint32 `json:"code"`
}

func handleStatus(c *gin.Context) {
	var status capi.MountStatus
	capi.GetMountStatus(&status)

	mounted := "unmounted"
	switch status {
	case capi.StatusMounted:
		mounted = "mounted"
	case capi.StatusUnsupportedFS:
		mounted = "unsupported-fs"
	}

	ready := capi.IsReady() == 0
	snap := diag.TakeHostSnapshot()

	c.JSON(http.StatusOK, StatusResponse{
		Mounted: mounted,
		Ready:   ready,
		Host: hostDTO{
			CPUPercent:     snap.CPUPercent,
			MemUsedPercent: snap.MemUsedPercent,
			Platform:       snap.Platform,
			GoVersion:      snap.GoVersion,
		},
	})
}

func handleStat(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing required query parameter: path"})
		return
	}

	var entry capi.DirEntry
	if code := capi.StatPath(path, &entry); code != 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("stat %s failed", path), Code: uint32(code)})
		return
	}

	c.JSON(http.StatusOK, StatResponse{
		Name:        entry.Name,
		LengthBytes: entry.LengthBytes,
		Type:        entry.Flags.String(),
	})
}

func handleFsStats(c *gin.Context) {
	var stats capi.FsStats
	if code := capi.StatFilesystem(&stats); code != 0 {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "filesystem not mounted", Code: uint32(code)})
		return
	}

	c.JSON(http.StatusOK, FsStatsResponse{
		ClusterSize:   stats.ClusterSize,
		FreeClusters:  stats.FreeClusters,
		TotalClusters: stats.TotalClusters,
	})
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/status", handleStatus)
	router.GET("/stat", handleStat)
	router.GET("/fsstats", handleFsStats)

	return router
}

func runServer(addr string) {
	srv := &http.Server{
		Addr:    addr,
		Handler: newRouter(),
	}

	go func() {
		log.Printf("nx-fatdrived listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("nx-fatdrived: server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("nx-fatdrived: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("nx-fatdrived: shutdown error: %v", err)
	}

	if code := capi.Exit(); code != 0 {
		log.Printf("nx-fatdrived: unmount error: code 0x%X", code)
	}
	log.Println("nx-fatdrived: stopped")
}

func main() {
	cfg := diag.LoadConfig()
	addr := flag.String("listen", cfg.HTTPListenAddr, "HTTP listen address")
	timeout := flag.Duration("timeout", cfg.DriveWaitTimeout, "how long to wait for the drive to enumerate")
	flag.Parse()

	if code := capi.Initialize(*timeout); code != 0 {
		fmt.Fprintf(os.Stderr, "nx-fatdrived: mount failed: code 0x%X\n", code)
		os.Exit(1)
	}

	runServer(*addr)
}
