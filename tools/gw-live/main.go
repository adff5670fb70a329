// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/gravwave/gw-live/live"
	"github.com/gravwave/gw-live/live/handlers/callback"
	"github.com/gravwave/gw-live/live/handlers/client"
	"github.com/gravwave/gw-live/live/handlers/ingress"
	"github.com/gravwave/gw-live/live/handlers/login"
	"github.com/gravwave/gw-live/live/handlers/logout"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/gorilla/mux"
	"github.com/skratchdot/open-golang/open"
	"golang.org/x/net/websocket"
)

var (
	openBrowser = flag.Bool("b", false, "open a browser window and connect to server")
	cpuProfile  = flag.String("cpuprofile", "", "output file for cpu profiling")
)

func printUsage() {
	fmt.Fprintf(os.Stderr,
		`Usage: `+os.Args[0]+` [options]

Serve the live search monitor.  Analysis drivers push blocks to the
/ingress websocket; browsers watch shows and run replays on /client.

Configured through the environment: REDIS_ADDR (falls back to an
embedded redis), PORT, SESSION_KEY, AUTH0_CLIENT_ID, SECURE_ONLY,
MAX_SHOW_RATE.

options:
`,
	)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	redisClient, redisAddr := connectRedis()
	defer redisClient.Close()

	port := os.Getenv("PORT")
	if len(port) == 0 {
		port = "8080"
	}

	clientHandler := &client.ClientHandler{
		Redis:       redisClient,
		Addr:        redisAddr,
		MaxShowRate: showRateLimit(),
	}
	clientHandler.EnableCompression = true
	wsc := &ingress.WsCollector{Redis: redisClient, Addr: redisAddr}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: buildRouter(clientHandler, wsc),
	}
	switch strings.ToLower(os.Getenv("SECURE_ONLY")) {
	case "true", "on":
		log.Println("Enabling HTTP proxy securing middleware")
		srv.Handler = Secure(srv.Handler)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal("could not create cpu profile file: ", err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// Set up interrupt for nice quitting
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		<-c
		srv.Shutdown(context.Background())
	}()

	if *openBrowser {
		// Shut the server down once the last browser disconnects.
		clientHandler.Srv = srv
		go func() {
			time.Sleep(10 * time.Millisecond)
			open.Run("http://localhost:" + port)
		}()
	}

	log.Println("http server started on :" + port)
	if err := srv.ListenAndServe(); err != nil {
		log.Println("ListenAndServe: ", err)
	}

	log.Println("successful quit")
}

// connectRedis dials REDIS_ADDR, or starts an embedded server when the
// environment names none.
func connectRedis() (*redis.Client, string) {
	redisAddr := os.Getenv("REDIS_ADDR")
	if len(redisAddr) == 0 {
		s, err := miniredis.Run()
		if err != nil {
			log.Println("unable to start miniredis server:", err)
		}
		redisAddr = s.Addr()
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	ping := redisClient.Ping()
	if ping.Err() != nil {
		log.Fatalf("unable to ping redis server: %v\n", ping.Err())
	}
	log.Printf("successfully connected to redis server at %v with status %v\n", redisAddr, ping.String())
	return redisClient, redisAddr
}

func showRateLimit() float64 {
	if v := os.Getenv("MAX_SHOW_RATE"); len(v) > 0 {
		if max, err := strconv.ParseFloat(v, 64); err == nil {
			return max
		}
	}
	return 100
}

// buildRouter wires the monitor's routes.  With an Auth0 client ID in
// the environment the client and root routes go behind login.
func buildRouter(clientHandler *client.ClientHandler, wsc *ingress.WsCollector) *mux.Router {
	ingressHandler := websocket.Handler(wsc.Collect)
	webdataHandler := live.Webdata("/webdata/")
	rootHandler := live.Webdata("/")

	router := mux.NewRouter()
	if len(os.Getenv("AUTH0_CLIENT_ID")) > 0 {
		log.Println("Enabling Auth0 login with client ID", os.Getenv("AUTH0_CLIENT_ID"))

		wsc.DefaultNamespace = "gw-data-dev1"

		router.Handle("/callback", http.HandlerFunc(callback.LoginCallback))
		router.Handle("/client", login.LoginMiddleware(clientHandler))
		router.Handle("/ingress", ingressHandler)
		router.Handle("/logout", http.HandlerFunc(logout.Logout))
		router.PathPrefix("/webdata/").Handler(webdataHandler)
		router.PathPrefix("/").Handler(login.LoginMiddleware(rootHandler))
	} else {
		wsc.DefaultNamespace = "everyone"

		router.Handle("/client", clientHandler)
		router.Handle("/ingress", ingressHandler)
		router.PathPrefix("/webdata/").Handler(webdataHandler)
		router.PathPrefix("/").Handler(rootHandler)
	}
	return router
}

// Middleware for redirecting http requests that are behind an HTTP proxy to
// https
func Secure(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if strings.ToLower(r.Header.Get("x-forwarded-proto")) == "http" {
				target := "https://" + r.Host + r.URL.Path
				if len(r.URL.RawQuery) > 0 {
					target += "?" + r.URL.RawQuery
				}
				log.Printf("redirect to: %s", target)
				http.Redirect(w, r, target,
					http.StatusTemporaryRedirect)
				return
			}

			next.ServeHTTP(w, r)
		},
	)
}
