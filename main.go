package main

import (
	"time"

	"github.com/creeps/board/config"
	"github.com/creeps/board/models"
	"github.com/creeps/board/routes"
	"github.com/creeps/board/services"
	"github.com/creeps/board/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync()

	db := config.InitDatabase(&models.User{}, &models.Post{}, &models.Comment{}, &models.UserConsent{})

	var markers services.MarkerStore
	switch cfg.MarkerBackend {
	case "memory":
		mem, err := services.NewMemoryMarkerStore(services.DefaultMemoryMarkers)
		if err != nil {
			utils.Sugar.Fatalf("init view markers: %v", err)
		}
		markers = mem
	default:
		markers = services.NewRedisMarkerStore(utils.GetRedis())
	}
	views := services.NewViewCounter(markers, services.NewGormViewStore(db), time.Duration(cfg.ViewDedupSeconds)*time.Second)

	media, err := services.NewMediaStore(cfg)
	if err != nil {
		utils.Sugar.Fatalf("init media store: %v", err)
	}
	cleaner := services.NewAssetCleaner(media, time.Duration(cfg.MediaDeleteTimeoutSec)*time.Second, utils.Sugar.Named("assets"))

	r := routes.SetupRouter(routes.Deps{DB: db, Views: views, Cleaner: cleaner, Media: media})

	srv := utils.NewServer(":"+cfg.AppPort, r, utils.DefaultReadTimeout, utils.DefaultWriteTimeout)
	// let in-flight image deletions finish before exit
	srv.OnShutdown(cleaner.Wait)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := srv.ListenAndServe(); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
