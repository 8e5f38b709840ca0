package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"jozvesaz/internal/apihandlers"
)

var (
	serveAddr string // Listen address
	servePort string // Listen port
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Starts the HTTP server exposing the auth and task-submission API.
Task processing itself happens in the worker process; this server only
records tasks and enqueues jobs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()

		// gin.SetMode(gin.ReleaseMode) // Uncomment for production
		router := gin.Default() // Includes logger and recovery middleware

		apiHandler := apihandlers.NewAPIHandler(appInstance)
		requireUser := apihandlers.RequireUser(
			appInstance.UserStore,
			appInstance.TokenIssuer,
			appInstance.Config.Auth.AccessCookieName,
		)

		authGroup := router.Group("/auth")
		{
			authGroup.POST("/register", apiHandler.RegisterHandler)
			authGroup.POST("/login", apiHandler.LoginHandler)
			authGroup.GET("/me", requireUser, apiHandler.MeHandler)
		}

		v1 := router.Group("/api/v1")
		{
			taskGroup := v1.Group("/tasks", requireUser)
			{
				taskGroup.POST("", apiHandler.CreateTaskHandler)
				taskGroup.GET("", apiHandler.ListTasksHandler)
				taskGroup.GET("/:id", apiHandler.GetTaskHandler)
				taskGroup.GET("/:id/result", apiHandler.GetTaskResultHandler)
				taskGroup.PUT("/:id/result", apiHandler.UpdateTaskResultHandler)
			}
		}

		router.GET("/health", func(c *gin.Context) {
			if err := appInstance.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		listenAddr := fmt.Sprintf("%s:%s", serveAddr, servePort)
		srv := &http.Server{Addr: listenAddr, Handler: router}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("Starting API server on http://%s", listenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return fmt.Errorf("failed to run API server: %w", err)
		case <-shutdown:
		}

		log.Println("Shutdown signal received. Stopping API server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		log.Println("API server stopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "0.0.0.0", "Address to listen on")
	serveCmd.Flags().StringVar(&servePort, "port", "8000", "Port to listen on")
}
