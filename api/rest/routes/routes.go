package routes

import (
	"aiforge-core/api/rest/handlers"
	"aiforge-core/api/rest/middleware"
	"aiforge-core/core/monitoring"
	"aiforge-core/core/nft"
	"aiforge-core/core/payment"
	"aiforge-core/core/registry"
	"aiforge-core/core/revenue"
	"aiforge-core/core/scheduler"
	"aiforge-core/storage"

	"github.com/gorilla/mux"
)

// Dependencies are the services the API is built on
type Dependencies struct {
	Registry      *registry.Registry
	Scheduler     *scheduler.Scheduler
	Artifacts     *storage.ArtifactManager
	Content       *storage.ContentStore
	Announcements handlers.AnnouncementServer
	Payments      *payment.Service
	Revenue       *revenue.Engine
	NFT           *nft.Engine
	Nodes         monitoring.NodeCounter
	Policy        middleware.AuthorizationPolicy
	MaxUpload     int64
}

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, deps Dependencies) {
	nodeHandler := handlers.NewNodeHandler(deps.Registry, deps.Scheduler, deps.Artifacts, deps.Announcements, deps.MaxUpload)
	jobHandler := handlers.NewJobHandler(deps.Scheduler, deps.Artifacts)
	paymentHandler := handlers.NewPaymentHandler(deps.Payments, deps.Policy)
	revenueHandler := handlers.NewRevenueHandler(deps.Revenue)
	nftHandler := handlers.NewNFTHandler(deps.NFT)
	contentHandler := handlers.NewContentHandler(deps.Content, deps.MaxUpload)
	dashboardHandler := handlers.NewDashboardHandler(deps.Scheduler, deps.Nodes, deps.Revenue, deps.NFT)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(middleware.WithActor)

	// Node endpoints
	api.HandleFunc("/nodes/register", nodeHandler.Register).Methods("POST")
	api.HandleFunc("/nodes", nodeHandler.ListNodes).Methods("GET")
	api.HandleFunc("/nodes/{node_id}", nodeHandler.GetNode).Methods("GET")

	node := api.PathPrefix("/nodes/{node_id}").Subrouter()
	node.Use(middleware.RequireNodeToken(deps.Registry))
	node.HandleFunc("/heartbeat", nodeHandler.Heartbeat).Methods("POST")
	node.HandleFunc("/announcements", nodeHandler.Announcements).Methods("GET")
	node.HandleFunc("/jobs/poll", nodeHandler.Poll).Methods("POST")
	node.HandleFunc("/jobs/{job_id}/status", nodeHandler.ReportStatus).Methods("POST")
	node.HandleFunc("/jobs/{job_id}/complete", nodeHandler.Complete).Methods("POST")
	node.HandleFunc("/jobs/{job_id}/artifacts/{type}", nodeHandler.UploadArtifact).Methods("PUT")

	// Job endpoints
	api.HandleFunc("/jobs", jobHandler.SubmitJob).Methods("POST")
	api.HandleFunc("/jobs/{id}", jobHandler.GetJob).Methods("GET")
	api.HandleFunc("/jobs", jobHandler.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}/cancel", jobHandler.CancelJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/events", jobHandler.GetJobEvents).Methods("GET")
	api.HandleFunc("/jobs/{id}/artifacts", jobHandler.GetJobArtifacts).Methods("GET")
	api.HandleFunc("/jobs/{id}/checkpoint", jobHandler.GetLatestCheckpoint).Methods("GET")

	// Content endpoints
	api.HandleFunc("/content", contentHandler.Upload).Methods("POST")
	api.HandleFunc("/content/{cid}", contentHandler.Download).Methods("GET")

	// Payment endpoints
	api.HandleFunc("/payments", paymentHandler.CreatePayment).Methods("POST")
	api.HandleFunc("/payments", paymentHandler.ListPayments).Methods("GET")
	api.HandleFunc("/payments/{id}", paymentHandler.GetPayment).Methods("GET")
	api.HandleFunc("/payments/{id}/verify", paymentHandler.VerifyPayment).Methods("POST")
	api.HandleFunc("/payments/{id}/cancel", paymentHandler.CancelPayment).Methods("POST")

	// Group revenue endpoints
	api.HandleFunc("/models/{model_id}/revenue-split", revenueHandler.ConfigureSplit).Methods("PUT")
	api.HandleFunc("/models/{model_id}/revenue-split", revenueHandler.GetSplit).Methods("GET")
	api.HandleFunc("/models/{model_id}/revenue/{year}/{month}", revenueHandler.CalculateRevenue).Methods("GET")
	api.HandleFunc("/models/{model_id}/distributions/{year}/{month}", revenueHandler.GetDistribution).Methods("GET")
	api.HandleFunc("/groups/{group_id}/default-split", revenueHandler.DefaultSplit).Methods("GET")
	api.HandleFunc("/users/me/earnings", revenueHandler.MyEarnings).Methods("GET")

	// NFT endpoints
	api.HandleFunc("/nft/stats", nftHandler.Stats).Methods("GET")
	api.HandleFunc("/nft/rewards", nftHandler.HolderRewards).Methods("GET")
	api.HandleFunc("/nft/pools/{year}/{month}/rewards", nftHandler.PoolRewards).Methods("GET")

	// Admin endpoints
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin(deps.Policy))
	admin.HandleFunc("/dashboard", dashboardHandler.GetOverview).Methods("GET")
	admin.HandleFunc("/dashboard/jobs", dashboardHandler.GetRecentJobs).Methods("GET")
	admin.HandleFunc("/nodes/sweep", nodeHandler.Sweep).Methods("POST")
	admin.HandleFunc("/nodes/{node_id}/activate", nodeHandler.Activate).Methods("POST")
	admin.HandleFunc("/nodes/{node_id}/deactivate", nodeHandler.Deactivate).Methods("POST")
	admin.HandleFunc("/jobs/{id}/retry", jobHandler.RetryJob).Methods("POST")
	admin.HandleFunc("/models/{model_id}/distributions/{year}/{month}", revenueHandler.DistributeRevenue).Methods("POST")
	admin.HandleFunc("/revenue/{year}/{month}", revenueHandler.PlatformRevenue).Methods("GET")
	admin.HandleFunc("/nft/shares", nftHandler.RegisterShare).Methods("POST")
	admin.HandleFunc("/nft/pools/{year}/{month}", nftHandler.GetPool).Methods("GET")
	admin.HandleFunc("/nft/pools/{year}/{month}/distribute", nftHandler.DistributePool).Methods("POST")
}
