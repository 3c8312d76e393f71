// Command main fills the database with demo posts and comment threads.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"chatapp/internal/config"
	"chatapp/internal/database"
	"chatapp/internal/lock"
	"chatapp/internal/repository"
	"chatapp/internal/seed"
	"chatapp/internal/service"
)

func main() {
	opts := seed.DefaultOptions
	flag.IntVar(&opts.NumUsers, "users", opts.NumUsers, "Number of fake commenters")
	flag.IntVar(&opts.NumPosts, "posts", opts.NumPosts, "Number of posts to create")
	flag.IntVar(&opts.CommentsPerPost, "comments", opts.CommentsPerPost, "Comments per post")
	flag.IntVar(&opts.Workers, "workers", opts.Workers, "Posts seeded concurrently")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	randSeed := flag.Int64("seed", time.Now().UnixNano(), "Random seed for generated content")
	flag.Parse()

	log.Printf("Target: %d users, %d posts, %d comments per post, clean=%v",
		opts.NumUsers, opts.NumPosts, opts.CommentsPerPost, *shouldClean)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// A single process writes, so the in-process lock is enough here
	svc := service.NewCommentService(service.CommentServiceDeps{
		DB:       db,
		Comments: repository.NewCommentRepository(db),
		Posts:    repository.NewPostRepository(db),
		Locker:   lock.NewLocal(cfg.CommentLockTimeout),
		Config:   service.CommentConfigFrom(cfg),
	})
	s := seed.NewSeeder(db, svc, *randSeed)

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	summary, err := s.Run(context.Background(), opts)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	if len(summary.Broken) > 0 {
		log.Fatalf("Seeded trees failed verification for posts %v", summary.Broken)
	}

	log.Printf("Done: %d posts, %d comments, %d likes", summary.Posts, summary.Comments, summary.Likes)
}
