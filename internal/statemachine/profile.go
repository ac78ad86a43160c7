package statemachine

import "github.com/rbrinkke/userprofile-api/internal/models"

// PhotoModeration governs decisions on the main photo. approved and
// rejected are terminal; a new photo write re-arms pending outside this
// table (see ResetOnPhotoWrite).
var PhotoModeration = New[models.ModerationStatus]("photo_moderation").
	Allow(models.ModerationPending, models.ModerationApproved, models.ModerationRejected)

// ResetOnPhotoWrite is the state every main-photo write lands in,
// regardless of the current state.
const ResetOnPhotoWrite = models.ModerationPending

// AccountStatus governs ban and unban.
var AccountStatus = New[models.AccountStatus]("account_status").
	Allow(models.StatusActive, models.StatusTemporaryBan, models.StatusBanned).
	Allow(models.StatusTemporaryBan, models.StatusActive).
	Allow(models.StatusBanned, models.StatusActive)
