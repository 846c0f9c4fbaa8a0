package router

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"mindcare/internal/adapters/auth/tokens"
	idpdir "mindcare/internal/adapters/identity/idp"
	memdir "mindcare/internal/adapters/identity/memory"
	mem "mindcare/internal/adapters/storage/memory"
	pg "mindcare/internal/adapters/storage/postgres"
	"mindcare/internal/domain/appointments"
	"mindcare/internal/domain/claims"
	"mindcare/internal/domain/invitations"
	"mindcare/internal/domain/profiles"
	"mindcare/internal/domain/provisioning"
	"mindcare/internal/domain/relationships"
	"mindcare/internal/middleware"
	"mindcare/internal/platform/config"
	"mindcare/internal/platform/logger"
	"mindcare/internal/ports/auth"
	"mindcare/internal/ports/identity"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Config config.Config
	Logger logger.Logger

	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, decide por Config.DBDSN.
	DB *sql.DB

	// Opcional: directorio de identidad ya construido (tests). Si no,
	// decide por Config.IDPBaseURL.
	Directory identity.Directory
}

func NewRouter(opts Options) (http.Handler, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	verifier := opts.AuthVerifier
	if verifier == nil && opts.Config.AuthSecret != "" {
		v, err := tokens.NewVerifier(opts.Config.AuthSecret)
		if err != nil {
			return nil, err
		}
		verifier = v
	}
	r.Use(middleware.AuthContext(verifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	var (
		invRepo  invitations.Repository
		profRepo profiles.Repository
		relRepo  relationships.Repository
		apptRepo appointments.Repository
	)

	// Si no te pasan DB explícita, intenta por env (para dev/handoff)
	db := opts.DB
	if db == nil && opts.Config.DBDSN != "" {
		opened, err := pg.Open(opts.Config.DBDSN)
		if err != nil {
			return nil, err
		}
		db = opened
	}

	if db != nil {
		invRepo = pg.NewInvitationsRepo(db)
		profRepo = pg.NewProfilesRepo(db)
		relRepo = pg.NewRelationshipsRepo(db)
		apptRepo = pg.NewAppointmentsRepo(db)
	} else {
		invRepo = mem.NewInvitationsRepo()
		profRepo = mem.NewProfilesRepo()
		relRepo = mem.NewRelationshipsRepo()
		apptRepo = mem.NewAppointmentsRepo()
	}

	// Directorio de identidad: externo si hay IDP configurado, in-memory
	// si no.
	dir := opts.Directory
	var memDir *memdir.Directory
	if dir == nil {
		if opts.Config.IDPBaseURL != "" {
			d, err := idpdir.New(idpdir.Config{
				BaseURL: opts.Config.IDPBaseURL,
				APIKey:  opts.Config.IDPAPIKey,
				Timeout: 10 * time.Second,
			})
			if err != nil {
				return nil, err
			}
			dir = d
		} else {
			memDir = memdir.NewDirectory()
			dir = memDir
		}
	}

	// Services por módulo
	profilesSvc := profiles.NewService(profRepo)
	invitationsSvc := invitations.NewService(invRepo, dir)
	appointmentsSvc := appointments.NewService(apptRepo)

	claimsWriter := claims.NewWriter(dir)
	propagator := claims.NewPropagator(claimsWriter, profilesSvc, log)

	relationshipsSvc := relationships.NewService(relRepo, appointmentsSvc, claimsWriter, log)
	provisioningSvc := provisioning.NewService(dir, profilesSvc, invitationsSvc, relationshipsSvc, claimsWriter, log)

	// Con directorio in-memory el trigger onPrincipalCreated corre local.
	if memDir != nil {
		memDir.SetPrincipalCreatedHook(func(p identity.Principal) {
			propagator.OnPrincipalCreated(context.Background(), p)
		})
	}

	// Rutas por módulo
	invitations.RegisterRoutes(r, invitationsSvc, opts.Config.InviteBaseURL)
	relationships.RegisterRoutes(r, relationshipsSvc)
	provisioning.RegisterRoutes(r, provisioningSvc, propagator)

	return r, nil
}
