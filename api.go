package main

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// newRouter builds the HTTP control surface. The routes mirror the two
// hardware buttons plus read-only status for front ends.
func newRouter(ctrl *ShowController, library *Library) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, ctrl.Status())
		})

		api.GET("/songs", func(c *gin.Context) {
			c.JSON(http.StatusOK, library.Summaries())
		})

		api.POST("/show/start", func(c *gin.Context) {
			var req struct {
				Song string `json:"song"`
			}
			// An empty body means "start the playlist".
			_ = c.ShouldBindJSON(&req)

			var err error
			if req.Song != "" {
				err = ctrl.PlaySong(req.Song)
			} else {
				err = ctrl.StartShow()
			}
			if err != nil {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, ctrl.Status())
		})

		api.POST("/show/stop", func(c *gin.Context) {
			ctrl.StopShow()
			c.JSON(http.StatusOK, ctrl.Status())
		})

		api.POST("/show/skip", func(c *gin.Context) {
			if err := ctrl.Skip(); err != nil {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, ctrl.Status())
		})

		api.POST("/mode", func(c *gin.Context) {
			var req struct {
				Mode *int `json:"mode"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || req.Mode == nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"mode\": n}"})
				return
			}
			if *req.Mode < ModeOff || *req.Mode > ModeFast {
				c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be -1 through 3"})
				return
			}
			ctrl.SetMode(*req.Mode)
			c.JSON(http.StatusOK, ctrl.Status())
		})

		api.POST("/mode/cycle", func(c *gin.Context) {
			ctrl.CycleMode()
			c.JSON(http.StatusOK, ctrl.Status())
		})
	}

	return router
}

// corsMiddleware lets a browser front end on another origin talk to
// the API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// startAPI serves the router in the background and returns the server
// for shutdown.
func startAPI(listen string, router *gin.Engine) *http.Server {
	srv := &http.Server{Addr: listen, Handler: router}
	go func() {
		logrus.Infof("API listening on %s", listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("API server: %v", err)
		}
	}()
	return srv
}

// integrationPoller polls an external web endpoint and starts the show
// when it reads "1". It stands in for the original push button when the
// trigger lives on another machine.
type integrationPoller struct {
	checkURL string
	doneURL  string
	client   *http.Client
	ctrl     *ShowController
	interval time.Duration
	stop     chan struct{}
}

func newIntegrationPoller(checkURL, doneURL string, ctrl *ShowController) *integrationPoller {
	return &integrationPoller{
		checkURL: checkURL,
		doneURL:  doneURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		ctrl:     ctrl,
		interval: time.Second,
		stop:     make(chan struct{}),
	}
}

// Run polls once a second until Stop. Polling pauses while a song is
// playing, and connection errors back the poller off for ten seconds so
// a dead endpoint does not fill the log.
func (p *integrationPoller) Run() {
	logrus.Infof("integration poller watching %s", p.checkURL)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		if p.ctrl.Playing() {
			continue
		}
		triggered, err := p.check()
		if err != nil {
			logrus.Warnf("integration check: %v", err)
			select {
			case <-p.stop:
				return
			case <-time.After(10 * time.Second):
			}
			continue
		}
		if !triggered {
			continue
		}

		logrus.Info("integration trigger received")
		p.acknowledge()
		if err := p.ctrl.StartShow(); err != nil {
			logrus.Errorf("triggered show: %v", err)
		}
	}
}

func (p *integrationPoller) check() (bool, error) {
	resp, err := p.client.Get(p.checkURL)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(body)) == "1", nil
}

// acknowledge clears the remote trigger so one press plays one show.
func (p *integrationPoller) acknowledge() {
	if p.doneURL == "" {
		return
	}
	resp, err := p.client.Get(p.doneURL)
	if err != nil {
		logrus.Warnf("integration done: %v", err)
		return
	}
	resp.Body.Close()
}

// Stop ends the polling loop.
func (p *integrationPoller) Stop() {
	close(p.stop)
}
