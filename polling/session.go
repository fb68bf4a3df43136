// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package polling watches an MFRC522 for cards coming and going.
//
// A Session repeats one round per poll interval: WUPA, anticollision and
// select, the callbacks, then HLTA. Waking with WUPA instead of REQA means
// a card that stays in the field answers every round even though it was
// halted by the previous one. A card that stops answering for
// Config.CardRemovalTimeout is reported removed.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// ErrSessionClosed is returned by a session after Close.
var ErrSessionClosed = errors.New("polling session closed")

// CardFunc runs against a selected card. The card is halted afterwards.
type CardFunc func(ctx context.Context, device *mfrc522.Device, uid *mfrc522.UID) error

// Session handles continuous card monitoring with state machine.
//
// The callbacks run on the polling goroutine while the card is selected, so
// they may authenticate, read and write through Device. They must not call
// WithCard.
type Session struct {
	OnCardDetected func(uid *mfrc522.UID) error
	OnCardRemoved  func()
	OnCardChanged  func(uid *mfrc522.UID) error
	config         *Config
	device         *mfrc522.Device
	recoverer      DeviceRecoverer
	pauseChan      chan struct{}
	resumeChan     chan struct{}
	lastPoll       time.Time
	state          CardState
	errorCount     int
	stateMutex     syncutil.RWMutex
	deviceMutex    syncutil.Mutex
	closed         atomic.Bool
	isPaused       atomic.Bool
}

// NewSession creates a new card monitoring session
func NewSession(device *mfrc522.Device, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	return &Session{
		device:     device,
		config:     config,
		pauseChan:  make(chan struct{}, 1),
		resumeChan: make(chan struct{}, 1),
	}
}

// SetRecoverer sets what the session does after a fatal bus error or a
// host sleep. Without one, a fatal error ends Start.
func (s *Session) SetRecoverer(r DeviceRecoverer) {
	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()
	s.recoverer = r
}

// SetOnCardDetected sets the callback for when a card is detected.
func (s *Session) SetOnCardDetected(callback func(*mfrc522.UID) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardDetected = callback
}

// SetOnCardRemoved sets the callback for when a card is removed.
func (s *Session) SetOnCardRemoved(callback func()) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardRemoved = callback
}

// SetOnCardChanged sets the callback for when another card replaces the
// current one within the removal timeout.
func (s *Session) SetOnCardChanged(callback func(*mfrc522.UID) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardChanged = callback
}

// GetState returns the current card state
func (s *Session) GetState() CardState {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.state
}

// GetDevice returns the device in use, which changes when a recoverer
// reopens the reader.
func (s *Session) GetDevice() *mfrc522.Device {
	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()
	return s.device
}

// Start polls until ctx is done, a callback fails or the reader cannot be
// recovered. It blocks.
func (s *Session) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	s.lastPoll = time.Now()

	for {
		if err := s.handleContextAndPause(ctx); err != nil {
			return err
		}
		if err := s.checkSleep(ctx); err != nil {
			return err
		}
		if err := s.executePollingCycle(ctx); err != nil {
			return err
		}
		if err := s.waitForNextPollOrPause(ctx, ticker); err != nil {
			return err
		}
	}
}

// Close stops the removal timer. A running Start ends with its context.
func (s *Session) Close() error {
	s.closed.Store(true)

	s.stateMutex.Lock()
	safeTimerStop(s.state.RemovalTimer)
	s.state.RemovalTimer = nil
	s.stateMutex.Unlock()

	s.isPaused.Store(false)
	select {
	case <-s.pauseChan:
	default:
	}
	select {
	case <-s.resumeChan:
	default:
	}
	return nil
}

// Pause holds the polling loop before its next round.
func (s *Session) Pause() {
	if s.isPaused.CompareAndSwap(false, true) {
		select {
		case s.pauseChan <- struct{}{}:
		default:
		}
	}
}

// Resume lets a paused polling loop go on.
func (s *Session) Resume() {
	if s.isPaused.CompareAndSwap(true, false) {
		select {
		case s.resumeChan <- struct{}{}:
		default:
		}
	}
}

// IsPaused reports whether Pause is in effect.
func (s *Session) IsPaused() bool {
	return s.isPaused.Load()
}

// WithCard pauses polling, selects the card in the field and runs fn on
// it. It returns ErrNoCardInPoll when no card answers. The removal timer
// is suspended while fn runs.
func (s *Session) WithCard(ctx context.Context, fn CardFunc) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if !s.isPaused.Load() {
		s.Pause()
		defer s.Resume()
	}

	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()

	s.stateMutex.Lock()
	s.state.TransitionToReading()
	s.stateMutex.Unlock()
	defer s.restoreDetectedState()

	device := s.device
	uid, err := s.performSinglePoll(ctx, device)
	if err != nil {
		return err
	}
	defer s.releaseCard(ctx, device)
	return fn(ctx, device, uid)
}

// WithCardRetry is WithCard retried on retryable errors, with at most
// maxRetries attempts (3 if maxRetries <= 0).
func (s *Session) WithCardRetry(ctx context.Context, fn CardFunc, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	config := mfrc522.DefaultRetryConfig()
	config.MaxAttempts = maxRetries
	config.RetryTimeout = 0
	return mfrc522.RetryWithConfig(ctx, config, func() error {
		return s.WithCard(ctx, fn)
	})
}

// WithNextCard waits until a card can be selected and runs fn on it.
func (s *Session) WithNextCard(ctx context.Context, fn CardFunc) error {
	for {
		err := s.WithCard(ctx, fn)
		if !errors.Is(err, ErrNoCardInPoll) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.PollInterval):
		}
	}
}

func (s *Session) restoreDetectedState() {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	if s.state.Present {
		s.state.TransitionToDetected(s.config.CardRemovalTimeout, s.handleCardRemoval)
	} else {
		s.state.DetectionState = StateIdle
	}
}

func (s *Session) handleContextAndPause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.pauseChan:
		return s.waitForResume(ctx)
	default:
		return nil
	}
}

func (s *Session) waitForNextPollOrPause(ctx context.Context, ticker *time.Ticker) error {
	select {
	case <-ticker.C:
		return nil
	case <-s.pauseChan:
		return s.waitForResume(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) waitForResume(ctx context.Context) error {
	select {
	case <-s.resumeChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkSleep notices a host sleep by the gap since the last round. The
// card is forgotten and the reader recovered.
func (s *Session) checkSleep(ctx context.Context) error {
	now := time.Now()
	elapsed := now.Sub(s.lastPoll)
	s.lastPoll = now
	if !s.config.SleepRecovery.DetectSleep(elapsed, s.config.PollInterval) {
		return nil
	}

	mfrc522.Debugf("polling: %v since last poll, assuming host sleep", elapsed)
	s.handleCardRemoval()

	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()
	if s.recoverer == nil {
		return nil
	}
	return s.runRecovery(ctx, nil)
}

// runRecovery runs the recoverer and adopts its device. Callers hold
// deviceMutex.
func (s *Session) runRecovery(ctx context.Context, cause error) error {
	if s.recoverer == nil {
		return fmt.Errorf("polling stopped: %w", cause)
	}
	if err := s.recoverer.AttemptRecovery(ctx); err != nil {
		if cause != nil {
			return fmt.Errorf("recovery after %w failed: %w", cause, err)
		}
		return fmt.Errorf("recovery failed: %w", err)
	}
	s.device = s.recoverer.GetDevice()
	s.errorCount = 0
	return nil
}

// executePollingCycle runs one round and returns only errors that end
// polling.
func (s *Session) executePollingCycle(ctx context.Context) error {
	s.deviceMutex.Lock()
	defer s.deviceMutex.Unlock()

	device := s.device
	uid, err := s.performSinglePoll(ctx, device)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, ErrNoCardInPoll) {
			s.errorCount = 0
			return nil
		}
		return s.handlePollingError(ctx, err)
	}
	s.errorCount = 0

	defer s.releaseCard(ctx, device)
	if err := s.processPollingResults(uid); err != nil {
		return fmt.Errorf("callback error during polling: %w", err)
	}
	return nil
}

// performSinglePoll wakes and selects one card. RF trouble means no card
// this round; bus errors are returned.
func (*Session) performSinglePoll(ctx context.Context, device *mfrc522.Device) (*mfrc522.UID, error) {
	var atqa [2]byte
	err := device.WakeupA(ctx, atqa[:])
	// A collision on WUPA still means a card is there.
	if status := mfrc522.StatusOf(err); status != mfrc522.StatusOK && status != mfrc522.StatusCollision {
		return nil, classifyPollError(err)
	}

	uid, err := device.ReadCardSerial(ctx)
	if err != nil {
		return nil, classifyPollError(err)
	}
	return uid, nil
}

// classifyPollError turns RF failures into ErrNoCardInPoll and leaves bus
// errors as they are.
func classifyPollError(err error) error {
	switch mfrc522.StatusOf(err) {
	case mfrc522.StatusTimeout, mfrc522.StatusError, mfrc522.StatusCollision, mfrc522.StatusCRCWrong:
		return ErrNoCardInPoll
	default:
		return err
	}
}

// releaseCard halts the card and drops any Crypto1 session a callback
// opened.
func (*Session) releaseCard(ctx context.Context, device *mfrc522.Device) {
	if err := device.HaltA(ctx); err != nil {
		mfrc522.Debugf("polling: HLTA failed: %v", err)
	}
	if err := device.StopCrypto1(); err != nil {
		mfrc522.Debugf("polling: stop crypto1 failed: %v", err)
	}
}

// handlePollingError counts bus errors and calls the recoverer when the
// error is fatal or too many came in a row.
func (s *Session) handlePollingError(ctx context.Context, err error) error {
	s.errorCount++
	if !mfrc522.IsFatal(err) && s.errorCount <= s.config.MaxPollErrors {
		mfrc522.Debugf("polling: error %d/%d: %v", s.errorCount, s.config.MaxPollErrors, err)
		return nil
	}

	s.handleCardRemoval()
	return s.runRecovery(ctx, err)
}

// handleCardRemoval reports the card removed. It runs on the removal timer
// goroutine as well as the polling one.
func (s *Session) handleCardRemoval() {
	if s.closed.Load() {
		return
	}

	s.stateMutex.Lock()
	// A round is processing the card; the timer that fired is stale.
	if s.state.DetectionState == StateReading {
		s.stateMutex.Unlock()
		return
	}
	wasPresent := s.state.Present
	if wasPresent {
		s.state.TransitionToIdle()
	}
	onRemoved := s.OnCardRemoved
	s.stateMutex.Unlock()

	if wasPresent && onRemoved != nil {
		onRemoved()
	}
}

// processPollingResults runs the callbacks for uid and restarts the
// removal timer.
func (s *Session) processPollingResults(uid *mfrc522.UID) error {
	s.stateMutex.Lock()
	s.state.TransitionToReading()
	s.stateMutex.Unlock()

	err := s.updateCardState(uid)

	s.stateMutex.Lock()
	s.state.TransitionToDetected(s.config.CardRemovalTimeout, s.handleCardRemoval)
	s.stateMutex.Unlock()
	return err
}

// updateCardState records uid and calls OnCardDetected or OnCardChanged.
func (s *Session) updateCardState(uid *mfrc522.UID) error {
	current := uid.String()

	s.stateMutex.RLock()
	wasPresent := s.state.Present
	changed := wasPresent && s.state.LastUID != current
	onDetected := s.OnCardDetected
	onChanged := s.OnCardChanged
	s.stateMutex.RUnlock()

	if !wasPresent || changed {
		s.stateMutex.Lock()
		s.state.Present = true
		s.state.LastUID = current
		s.state.LastType = uid.Type().String()
		s.stateMutex.Unlock()
	}

	switch {
	case !wasPresent && onDetected != nil:
		mfrc522.Debugf("polling: card %s detected", current)
		return safeCallCallback(onDetected, uid, "OnCardDetected")
	case changed && onChanged != nil:
		mfrc522.Debugf("polling: card changed to %s", current)
		return safeCallCallback(onChanged, uid, "OnCardChanged")
	default:
		return nil
	}
}

// safeCallCallback executes a callback with panic recovery
func safeCallCallback(callback func(*mfrc522.UID) error, uid *mfrc522.UID, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s callback panicked: %v", name, r)
		}
	}()
	if cbErr := callback(uid); cbErr != nil {
		return fmt.Errorf("%s callback failed: %w", name, cbErr)
	}
	return nil
}
