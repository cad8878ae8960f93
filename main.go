package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	api "mailsync-backend/cmd/api"
	authRepo "mailsync-backend/internal/auth/repository"
	authUsecase "mailsync-backend/internal/auth/usecase"
	emaildomain "mailsync-backend/internal/email/domain"
	emailRepo "mailsync-backend/internal/email/repository"
	emailUsecase "mailsync-backend/internal/email/usecase"
	"mailsync-backend/internal/notification"
	notificationRepo "mailsync-backend/internal/notification/repository"
	"mailsync-backend/internal/notification/scheduler"
	notificationUsecase "mailsync-backend/internal/notification/usecase"
	"mailsync-backend/pkg/chroma"
	"mailsync-backend/pkg/config"
	"mailsync-backend/pkg/crypto"
	"mailsync-backend/pkg/database"
	"mailsync-backend/pkg/fcm"
	mailfirebase "mailsync-backend/pkg/firebase"
	"mailsync-backend/pkg/gmail"
	"mailsync-backend/pkg/imap"
	"mailsync-backend/pkg/storage"

	firebase "firebase.google.com/go/v4"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize database
	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	recordRepo := emailRepo.NewEmailRecordRepository(db)
	syncHistoryRepo := emailRepo.NewEmailSyncHistoryRepository(db)
	queue := notificationUsecase.NewNotificationQueue(notificationRepo.NewNotificationRepository(db))

	sealer, err := crypto.NewSealer(cfg.CredentialsKey)
	if err != nil {
		log.Fatal("Failed to initialize credential sealer:", err)
	}

	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GmailFormat, cfg.InitialSyncLimit)
	imapService := imap.NewService(cfg.InitialSyncLimit)
	authUc := authUsecase.NewAuthUsecase(userRepo, fcmTokenRepo, sealer, gmailService, cfg)

	// issue-token <email> prints an access token for an operator or mailbox owner
	if len(os.Args) > 1 && os.Args[1] == "issue-token" {
		if err := issueToken(authUc, os.Args[2:]); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Firebase app is shared by Storage and FCM
	var firebaseApp *firebase.App
	if cfg.FirebaseCredentials != "" || cfg.FirebaseStorageBucket != "" {
		firebaseApp, err = mailfirebase.NewApp(ctx, cfg.FirebaseCredentials, cfg.FirebaseStorageBucket)
		if err != nil {
			log.Printf("[WARN] %v", err)
		}
	}

	blobs, err := newBlobStore(ctx, cfg, firebaseApp)
	if err != nil {
		log.Fatal("Failed to initialize attachment storage:", err)
	}

	// Initialize Chroma client for vector search
	var vectorIndex emailUsecase.VectorIndex
	if cfg.ChromaAPIKey != "" {
		chromaClient, err := chroma.NewChromaClient(ctx, cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Chroma client: %v. Semantic search will not be available.", err)
		} else {
			vectorIndex = chromaClient
			log.Println("Chroma client initialized successfully")
		}
	} else {
		log.Println("Warning: CHROMA_API_KEY not set. Semantic search will not be available.")
	}

	providers := emailUsecase.NewProviderFactory(gmailService, imapService, sealer, userRepo)
	worker := emailUsecase.NewReconcileWorker(queue, authUc, providers, recordRepo, userRepo, blobs, emailUsecase.WorkerOptions{
		CallTimeout:           cfg.ProviderCallTimeout,
		ProcessingTimeout:     cfg.ProcessingTimeout,
		AttachmentConcurrency: cfg.AttachmentConcurrency,
	})

	if vectorIndex != nil {
		indexer := emailUsecase.NewVectorIndexer(vectorIndex, syncHistoryRepo, 1000)
		indexer.Start(ctx, 3)
		indexer.StartBackfill(ctx, cfg.SweepInterval, 200)
		worker.AddListener(indexer)
		defer indexer.Wait()
	}
	if firebaseApp != nil {
		fcmClient, err := fcm.NewClient(ctx, firebaseApp)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
		} else {
			worker.AddListener(notification.NewNewMailPusher(fcmClient, fcmTokenRepo))
		}
	}

	dispatcher := notificationUsecase.NewDispatcher(worker, queue, cfg.WorkerCount, 100)
	dispatcher.Start(ctx)
	defer dispatcher.Wait()

	recovery := scheduler.NewRecoveryScheduler(queue, dispatcher, scheduler.Options{
		Interval:       cfg.SweepInterval,
		StuckAfter:     cfg.StuckAfter,
		MaxAttempts:    cfg.MaxAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
	})
	recovery.Start(ctx)

	intake, err := notification.NewIntake(queue, dispatcher)
	if err != nil {
		log.Fatal("Failed to initialize notification intake:", err)
	}

	// Pub/Sub pull subscriber; only start if project ID is configured
	if cfg.GoogleProjectID != "" && cfg.GooglePubSubTopic != "" {
		// Extract short topic name from full resource name if necessary
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}

		notifService, err := notification.NewService(ctx, cfg.GoogleProjectID, topicName, cfg.GooglePubSubSubscription, cfg.GoogleCredentials, intake)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(ctx)
			defer notifService.Close()
		}
	} else {
		log.Printf("[WARN] GOOGLE_PROJECT_ID not configured, Pub/Sub pull disabled; push endpoint still available")
	}

	var downloadURLs emaildomain.DownloadURLResolver
	if resolver, ok := blobs.(emaildomain.DownloadURLResolver); ok {
		downloadURLs = resolver
	}

	handler := api.NewHandler(authUc, emailUsecase.NewEmailUsecase(recordRepo, vectorIndex, downloadURLs), queue, dispatcher, intake, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(ctx, ":"+cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config, app *firebase.App) (emaildomain.BlobStore, error) {
	switch cfg.BlobBackend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PresignTTL:      cfg.S3PresignTTL,
		})
	default:
		if app == nil {
			return nil, errors.New("BLOB_BACKEND=firebase needs FIREBASE_CREDENTIALS or FIREBASE_STORAGE_BUCKET")
		}
		return storage.NewFirebaseStore(ctx, app, cfg.FirebaseStorageBucket)
	}
}

func issueToken(authUc authUsecase.AuthUsecase, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: mailsync-backend issue-token <email>")
	}
	email := strings.ToLower(strings.TrimSpace(args[0]))

	userID := ""
	user, err := authUc.ResolveUser(context.Background(), email)
	switch {
	case err == nil:
		userID = user.ID
	case !errors.Is(err, emaildomain.ErrNotFound):
		return err
	}

	token, err := authUc.IssueAccessToken(userID, email)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
