package domain

import (
	"time"

	"github.com/Vovarama1992/voicememo/internal/models"
)

type nopPresenter struct{}

func (nopPresenter) PublishState(models.SessionSnapshot) {}
func (nopPresenter) RecordingSaved(string, string)       {}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()                                 {}
func (nopMetrics) SessionClosed()                                 {}
func (nopMetrics) RecordingCompleted(int)                         {}
func (nopMetrics) FragmentReceived(bool)                          {}
func (nopMetrics) UploadStarted()                                 {}
func (nopMetrics) UploadSucceeded(time.Duration)                  {}
func (nopMetrics) UploadFailed(string, time.Duration)             {}
func (nopMetrics) HTTPRequest(string, string, int, time.Duration) {}
