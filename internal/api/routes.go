package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.dashboardHandler.Index)
	s.router.GET("/favicon.ico", s.dashboardHandler.Favicon)
	s.router.GET("/static/*filepath", s.dashboardHandler.Static)

	s.router.GET("/video_feed", s.streamHandler.VideoFeed)
	s.router.GET("/video_feed_raw", s.streamHandler.VideoFeedRaw)
	s.router.GET("/sensor_data", s.sensorHandler.SensorData)

	s.router.GET("/health", s.healthHandler.HealthCheck)

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}

	s.router.GET("/pipeline/stats", s.statsHandler.PipelineStats)
	s.router.GET("/ws/stats", s.statsHandler.StatsWS)
}
