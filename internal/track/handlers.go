package track

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type startRequest struct {
	Association Association `json:"association"`
}

// RegisterRoutes mounts the device-facing session API. Mutating routes sit
// behind the auth middleware; snapshot and recovery reads are open like the
// rest of the read-side API.
func RegisterRoutes(r fiber.Router, engine *Engine, authMiddleware fiber.Handler) {
	r.Post("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		var req startRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		session, err := engine.Start(c.Context(), req.Association)
		if err != nil {
			return statusError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Post("/sessions/current/samples", authMiddleware, func(c *fiber.Ctx) error {
		var sample Sample
		if err := c.BodyParser(&sample); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := engine.OnSample(c.Context(), sample); err != nil {
			if errors.Is(err, ErrSampleRejected) {
				return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
					"accepted": false,
					"reason":   err.Error(),
				})
			}
			return statusError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
	})

	r.Post("/sessions/current/pause", authMiddleware, func(c *fiber.Ctx) error {
		session, err := engine.Pause()
		if err != nil {
			return statusError(err)
		}
		return c.JSON(session)
	})

	r.Post("/sessions/current/resume", authMiddleware, func(c *fiber.Ctx) error {
		session, err := engine.Resume()
		if err != nil {
			return statusError(err)
		}
		return c.JSON(session)
	})

	r.Post("/sessions/current/stop", authMiddleware, func(c *fiber.Ctx) error {
		session, err := engine.Stop(c.Context())
		if err != nil {
			if errors.Is(err, ErrUploadFailed) {
				// Recoverable: the session stays in stopping with its backup
				// intact, and stop can be retried.
				return c.Status(fiber.StatusServiceUnavailable).JSON(session)
			}
			return statusError(err)
		}
		return c.JSON(session)
	})

	r.Post("/sessions/current/discard", authMiddleware, func(c *fiber.Ctx) error {
		session, err := engine.Discard(c.Context())
		if err != nil {
			return statusError(err)
		}
		return c.JSON(session)
	})

	r.Get("/sessions/current", func(c *fiber.Ctx) error {
		snap, ok := engine.Snapshot()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no active session")
		}
		return c.JSON(snap)
	})

	r.Get("/recovery", func(c *fiber.Ctx) error {
		infos, err := engine.CheckRecoverable(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if infos == nil {
			infos = []BackupInfo{}
		}
		return c.JSON(infos)
	})

	r.Post("/recovery/:id/recover", authMiddleware, func(c *fiber.Ctx) error {
		session, err := engine.Recover(c.Context(), c.Params("id"))
		if err != nil {
			return statusError(err)
		}
		return c.JSON(session)
	})

	r.Post("/recovery/:id/dismiss", authMiddleware, func(c *fiber.Ctx) error {
		if err := engine.Dismiss(c.Context(), c.Params("id")); err != nil {
			return statusError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func statusError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAssociation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSessionAlreadyActive), errors.Is(err, ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrNoActiveSession), errors.Is(err, ErrNoBackup):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrRecoveryCorrupt):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
