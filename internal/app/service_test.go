package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"ecostarter/api/internal/ai"
	"ecostarter/api/internal/authpw"
	"ecostarter/api/internal/config"
	"ecostarter/api/internal/live"
	"ecostarter/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn           func(context.Context, string) (store.User, error)
	getProfileFn            func(context.Context, string) (store.Profile, error)
	createProfileFn         func(context.Context, string, store.Profile) error
	updateProfileFieldsFn   func(context.Context, string, store.ProfilePatch) (bool, error)
	listPostsFn             func(context.Context) ([]store.Post, error)
	getPostFn               func(context.Context, string) (store.Post, error)
	insertPostFn            func(context.Context, store.Post) (time.Time, error)
	updatePostContentFn     func(context.Context, string, string, string, string) (bool, error)
	deletePostFn            func(context.Context, string, string) (bool, error)
	addPostLikeFn           func(context.Context, string, string) error
	removePostLikeFn        func(context.Context, string, string) error
	appendPostCommentFn     func(context.Context, string, store.Comment) (bool, error)
	getJourneyFn            func(context.Context, string) (store.Journey, error)
	insertJourneyFn         func(context.Context, store.Journey) error
	insertJourneyCommentFn  func(context.Context, store.JourneyComment) error
	listJourneyCommentsFn   func(context.Context, string) ([]store.JourneyComment, error)
	journeyCommentCountFn   func(context.Context, string) (int, error)
	getChallengeFn          func(context.Context, string) (store.Challenge, error)
	insertChallengeFn       func(context.Context, store.Challenge) error
	setChallengeCompletedFn func(context.Context, string, string, bool) (bool, error)
	deleteChallengeFn       func(context.Context, string, string) (bool, error)
	listCarbonEntriesFn     func(context.Context, string) ([]store.CarbonEntry, error)
	insertCarbonEntryFn     func(context.Context, store.CarbonEntry) error
	pingFn                  func(context.Context) error
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID}, nil
}
func (f *fakeStore) GetProfile(ctx context.Context, userID string) (store.Profile, error) {
	if f.getProfileFn != nil {
		return f.getProfileFn(ctx, userID)
	}
	return store.Profile{Interests: []string{}}, nil
}
func (f *fakeStore) CreateProfile(ctx context.Context, userID string, profile store.Profile) error {
	if f.createProfileFn != nil {
		return f.createProfileFn(ctx, userID, profile)
	}
	return nil
}
func (f *fakeStore) UpdateProfileFields(ctx context.Context, userID string, patch store.ProfilePatch) (bool, error) {
	if f.updateProfileFieldsFn != nil {
		return f.updateProfileFieldsFn(ctx, userID, patch)
	}
	return true, nil
}
func (f *fakeStore) ListPosts(ctx context.Context) ([]store.Post, error) {
	if f.listPostsFn != nil {
		return f.listPostsFn(ctx)
	}
	return []store.Post{}, nil
}
func (f *fakeStore) GetPost(ctx context.Context, postID string) (store.Post, error) {
	if f.getPostFn != nil {
		return f.getPostFn(ctx, postID)
	}
	return store.Post{}, sql.ErrNoRows
}
func (f *fakeStore) InsertPost(ctx context.Context, post store.Post) (time.Time, error) {
	if f.insertPostFn != nil {
		return f.insertPostFn(ctx, post)
	}
	return time.Now(), nil
}
func (f *fakeStore) UpdatePostContent(ctx context.Context, postID, userID, content, image string) (bool, error) {
	if f.updatePostContentFn != nil {
		return f.updatePostContentFn(ctx, postID, userID, content, image)
	}
	return false, nil
}
func (f *fakeStore) DeletePost(ctx context.Context, postID, userID string) (bool, error) {
	if f.deletePostFn != nil {
		return f.deletePostFn(ctx, postID, userID)
	}
	return false, nil
}
func (f *fakeStore) AddPostLike(ctx context.Context, postID, userID string) error {
	if f.addPostLikeFn != nil {
		return f.addPostLikeFn(ctx, postID, userID)
	}
	return nil
}
func (f *fakeStore) RemovePostLike(ctx context.Context, postID, userID string) error {
	if f.removePostLikeFn != nil {
		return f.removePostLikeFn(ctx, postID, userID)
	}
	return nil
}
func (f *fakeStore) AppendPostComment(ctx context.Context, postID string, comment store.Comment) (bool, error) {
	if f.appendPostCommentFn != nil {
		return f.appendPostCommentFn(ctx, postID, comment)
	}
	return false, nil
}
func (f *fakeStore) ListJourneys(context.Context) ([]store.Journey, error) {
	return []store.Journey{}, nil
}
func (f *fakeStore) GetJourney(ctx context.Context, journeyID string) (store.Journey, error) {
	if f.getJourneyFn != nil {
		return f.getJourneyFn(ctx, journeyID)
	}
	return store.Journey{}, sql.ErrNoRows
}
func (f *fakeStore) InsertJourney(ctx context.Context, journey store.Journey) error {
	if f.insertJourneyFn != nil {
		return f.insertJourneyFn(ctx, journey)
	}
	return nil
}
func (f *fakeStore) AddJourneyLike(context.Context, string, string) error    { return nil }
func (f *fakeStore) RemoveJourneyLike(context.Context, string, string) error { return nil }
func (f *fakeStore) InsertJourneyComment(ctx context.Context, comment store.JourneyComment) error {
	if f.insertJourneyCommentFn != nil {
		return f.insertJourneyCommentFn(ctx, comment)
	}
	return nil
}
func (f *fakeStore) ListJourneyComments(ctx context.Context, journeyID string) ([]store.JourneyComment, error) {
	if f.listJourneyCommentsFn != nil {
		return f.listJourneyCommentsFn(ctx, journeyID)
	}
	return []store.JourneyComment{}, nil
}
func (f *fakeStore) JourneyCommentCount(ctx context.Context, journeyID string) (int, error) {
	if f.journeyCommentCountFn != nil {
		return f.journeyCommentCountFn(ctx, journeyID)
	}
	return 0, nil
}
func (f *fakeStore) ListChallenges(context.Context, string) ([]store.Challenge, error) {
	return []store.Challenge{}, nil
}
func (f *fakeStore) GetChallenge(ctx context.Context, challengeID string) (store.Challenge, error) {
	if f.getChallengeFn != nil {
		return f.getChallengeFn(ctx, challengeID)
	}
	return store.Challenge{}, sql.ErrNoRows
}
func (f *fakeStore) InsertChallenge(ctx context.Context, challenge store.Challenge) error {
	if f.insertChallengeFn != nil {
		return f.insertChallengeFn(ctx, challenge)
	}
	return nil
}
func (f *fakeStore) UpdateChallenge(context.Context, store.Challenge) (bool, error) {
	return false, nil
}
func (f *fakeStore) SetChallengeCompleted(ctx context.Context, challengeID, userID string, completed bool) (bool, error) {
	if f.setChallengeCompletedFn != nil {
		return f.setChallengeCompletedFn(ctx, challengeID, userID, completed)
	}
	return false, nil
}
func (f *fakeStore) DeleteChallenge(ctx context.Context, challengeID, userID string) (bool, error) {
	if f.deleteChallengeFn != nil {
		return f.deleteChallengeFn(ctx, challengeID, userID)
	}
	return false, nil
}
func (f *fakeStore) ListCarbonEntries(ctx context.Context, userID string) ([]store.CarbonEntry, error) {
	if f.listCarbonEntriesFn != nil {
		return f.listCarbonEntriesFn(ctx, userID)
	}
	return []store.CarbonEntry{}, nil
}
func (f *fakeStore) InsertCarbonEntry(ctx context.Context, entry store.CarbonEntry) error {
	if f.insertCarbonEntryFn != nil {
		return f.insertCarbonEntryFn(ctx, entry)
	}
	return nil
}
func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeSessions struct {
	saved map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{saved: map[string]string{}}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.saved[tokenHash] = userID
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	userID, ok := f.saved[tokenHash]
	if !ok {
		return store.User{}, fmt.Errorf("token not found or expired")
	}
	return store.User{ID: userID}, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.saved, tokenHash)
	return nil
}

type fakeAuth struct {
	signUpFn func(context.Context, authpw.SignUpRequest) (store.User, error)
	signInFn func(context.Context, authpw.SignInRequest) (store.User, error)
}

func (f *fakeAuth) SignUp(ctx context.Context, req authpw.SignUpRequest) (store.User, error) {
	if f.signUpFn != nil {
		return f.signUpFn(ctx, req)
	}
	return store.User{ID: "user-1", Email: req.Email, DisplayName: req.Name}, nil
}

func (f *fakeAuth) SignIn(ctx context.Context, req authpw.SignInRequest) (store.User, error) {
	if f.signInFn != nil {
		return f.signInFn(ctx, req)
	}
	return store.User{ID: "user-1", Email: req.Email}, nil
}

type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(context.Context, string) (string, error) {
	return f.response, f.err
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:    fs,
		sessions: newFakeSessions(),
		auth:     &fakeAuth{},
		hub:      live.NewHub(),
	}
}

func testSession() Session {
	return Session{UserID: "user-1", UserName: "Avery", Email: "avery@example.com"}
}

func TestTogglePostLikeAddsWhenAbsent(t *testing.T) {
	added := false
	removed := false
	likes := []string{"someone-else"}
	fs := &fakeStore{
		getPostFn: func(_ context.Context, postID string) (store.Post, error) {
			return store.Post{ID: postID, Likes: likes}, nil
		},
		addPostLikeFn: func(_ context.Context, _, userID string) error {
			added = true
			likes = append(likes, userID)
			return nil
		},
		removePostLikeFn: func(context.Context, string, string) error {
			removed = true
			return nil
		},
	}
	svc := newTestService(fs)

	post, err := svc.TogglePostLike(context.Background(), testSession(), "post-1")
	if err != nil {
		t.Fatalf("toggle like: %v", err)
	}
	if !added || removed {
		t.Fatalf("expected add without remove, got added=%v removed=%v", added, removed)
	}
	if !containsString(post.Likes, "user-1") {
		t.Fatalf("expected user-1 in likes, got %v", post.Likes)
	}
}

func TestTogglePostLikeRemovesWhenPresent(t *testing.T) {
	added := false
	likes := []string{"user-1", "someone-else"}
	fs := &fakeStore{
		getPostFn: func(_ context.Context, postID string) (store.Post, error) {
			return store.Post{ID: postID, Likes: likes}, nil
		},
		addPostLikeFn: func(context.Context, string, string) error {
			added = true
			return nil
		},
		removePostLikeFn: func(_ context.Context, _, userID string) error {
			likes = []string{"someone-else"}
			return nil
		},
	}
	svc := newTestService(fs)

	post, err := svc.TogglePostLike(context.Background(), testSession(), "post-1")
	if err != nil {
		t.Fatalf("toggle like: %v", err)
	}
	if added {
		t.Fatalf("expected remove, not add")
	}
	if containsString(post.Likes, "user-1") {
		t.Fatalf("expected user-1 removed from likes, got %v", post.Likes)
	}
}

func TestTogglePostLikeMissingPost(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.TogglePostLike(context.Background(), testSession(), "nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestCommentOnPostMissingPost(t *testing.T) {
	fs := &fakeStore{
		appendPostCommentFn: func(context.Context, string, store.Comment) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CommentOnPost(context.Background(), testSession(), "nope", "hello")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestCommentOnPostCarriesAuthorProfile(t *testing.T) {
	var appended store.Comment
	fs := &fakeStore{
		getProfileFn: func(context.Context, string) (store.Profile, error) {
			return store.Profile{DisplayName: "Avery G", ProfileImage: "https://img/avery.png"}, nil
		},
		appendPostCommentFn: func(_ context.Context, _ string, comment store.Comment) (bool, error) {
			appended = comment
			return true, nil
		},
		getPostFn: func(_ context.Context, postID string) (store.Post, error) {
			return store.Post{ID: postID}, nil
		},
	}
	svc := newTestService(fs)

	comment, err := svc.CommentOnPost(context.Background(), testSession(), "post-1", "  nice work  ")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if comment.ID == "" {
		t.Fatalf("expected generated comment id")
	}
	if appended.UserName != "Avery G" || appended.UserAvatar != "https://img/avery.png" {
		t.Fatalf("expected profile identity on comment, got %+v", appended)
	}
	if appended.Content != "nice work" {
		t.Fatalf("expected trimmed content, got %q", appended.Content)
	}
}

func TestProfileCreatesDefaultOnFirstRead(t *testing.T) {
	creates := 0
	created := false
	var createdProfile store.Profile
	fs := &fakeStore{
		getProfileFn: func(context.Context, string) (store.Profile, error) {
			if !created {
				return store.Profile{}, sql.ErrNoRows
			}
			return createdProfile, nil
		},
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID, Email: "avery@example.com"}, nil
		},
		createProfileFn: func(_ context.Context, _ string, profile store.Profile) error {
			creates++
			created = true
			createdProfile = profile
			return nil
		},
	}
	svc := newTestService(fs)

	profile, err := svc.Profile(context.Background(), testSession())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.DisplayName != "avery" {
		t.Fatalf("expected display name from email local part, got %q", profile.DisplayName)
	}
	if creates != 1 {
		t.Fatalf("expected exactly one create, got %d", creates)
	}

	// Second read must not write again.
	if _, err := svc.Profile(context.Background(), testSession()); err != nil {
		t.Fatalf("second profile read: %v", err)
	}
	if creates != 1 {
		t.Fatalf("expected no additional create, got %d", creates)
	}
}

func TestUpdateProfilePatchLeavesOmittedFieldsNil(t *testing.T) {
	var gotPatch store.ProfilePatch
	fs := &fakeStore{
		updateProfileFieldsFn: func(_ context.Context, _ string, patch store.ProfilePatch) (bool, error) {
			gotPatch = patch
			return true, nil
		},
	}
	svc := newTestService(fs)

	bio := "saving the planet"
	if _, err := svc.UpdateProfile(context.Background(), testSession(), store.ProfilePatch{Bio: &bio}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if gotPatch.Bio == nil || *gotPatch.Bio != bio {
		t.Fatalf("expected bio in patch, got %+v", gotPatch)
	}
	if gotPatch.DisplayName != nil {
		t.Fatalf("expected omitted displayName to stay nil, got %q", *gotPatch.DisplayName)
	}
}

func TestDeletePostForeignOwnerIsSilent(t *testing.T) {
	fs := &fakeStore{
		deletePostFn: func(context.Context, string, string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)
	events, cancel := svc.Hub().Subscribe(TopicPosts)
	defer cancel()

	if err := svc.DeletePost(context.Background(), testSession(), "post-1"); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
	select {
	case event := <-events:
		t.Fatalf("expected no event for a no-op delete, got %+v", event)
	default:
	}
}

func TestDeletePostPublishesDeletedEvent(t *testing.T) {
	fs := &fakeStore{
		deletePostFn: func(context.Context, string, string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(fs)
	events, cancel := svc.Hub().Subscribe(TopicPosts)
	defer cancel()

	if err := svc.DeletePost(context.Background(), testSession(), "post-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case event := <-events:
		if event.Type != live.EventDeleted {
			t.Fatalf("expected deleted event, got %q", event.Type)
		}
	default:
		t.Fatalf("expected a deleted event")
	}
}

func TestLogCarbonFootprintFormatErrorLeavesHistory(t *testing.T) {
	inserted := false
	fs := &fakeStore{
		insertCarbonEntryFn: func(context.Context, store.CarbonEntry) error {
			inserted = true
			return nil
		},
	}
	svc := newTestService(fs)
	svc.ai = ai.NewService(&fakeCompleter{response: "sorry, I cannot help with that"})

	_, err := svc.LogCarbonFootprint(context.Background(), testSession(), ai.LifestyleAnswers{"diet": "vegetarian"})
	var formatErr *ai.FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if inserted {
		t.Fatalf("expected no entry written on format error")
	}
}

func TestLogCarbonFootprintAppendsEntry(t *testing.T) {
	var entry store.CarbonEntry
	fs := &fakeStore{
		insertCarbonEntryFn: func(_ context.Context, e store.CarbonEntry) error {
			entry = e
			return nil
		},
	}
	svc := newTestService(fs)
	svc.ai = ai.NewService(&fakeCompleter{
		response: `{"monthlyFootprint": 240.5, "breakdown": {"transportation": 120, "energy": 60, "consumption": 40, "waste": 20.5}}`,
	})

	got, err := svc.LogCarbonFootprint(context.Background(), testSession(), ai.LifestyleAnswers{"commute": "car"})
	if err != nil {
		t.Fatalf("log footprint: %v", err)
	}
	if got.Total != 240.5 || got.Transportation != 120 || got.Waste != 20.5 {
		t.Fatalf("unexpected entry values: %+v", got)
	}
	if entry.UserID != "user-1" {
		t.Fatalf("expected entry scoped to caller, got %q", entry.UserID)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID, Email: "avery@example.com", DisplayName: "Avery"}, nil
		},
	}
	svc := newTestService(fs)

	first, err := svc.issueSession(context.Background(), store.User{ID: "user-1", Email: "avery@example.com", DisplayName: "Avery"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("expected a rotated refresh token")
	}

	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatalf("expected replayed refresh token to fail")
	}
}

func TestToggleChallengeCompleteFlipsOnlyOwned(t *testing.T) {
	var setTo *bool
	fs := &fakeStore{
		getChallengeFn: func(_ context.Context, challengeID string) (store.Challenge, error) {
			return store.Challenge{ID: challengeID, UserID: "user-1", Title: "Bike to work", Completed: false}, nil
		},
		setChallengeCompletedFn: func(_ context.Context, _, _ string, completed bool) (bool, error) {
			setTo = &completed
			return true, nil
		},
	}
	svc := newTestService(fs)

	challenge, err := svc.ToggleChallengeComplete(context.Background(), testSession(), "chl-1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if setTo == nil || *setTo != true {
		t.Fatalf("expected completed set true")
	}
	if !challenge.Completed {
		t.Fatalf("expected returned challenge completed")
	}
	if challenge.Title != "Bike to work" {
		t.Fatalf("expected other fields untouched, got %+v", challenge)
	}
}

func TestToggleChallengeCompleteForeignLeavesRecord(t *testing.T) {
	fs := &fakeStore{
		getChallengeFn: func(_ context.Context, challengeID string) (store.Challenge, error) {
			return store.Challenge{ID: challengeID, UserID: "someone-else", Completed: false}, nil
		},
		setChallengeCompletedFn: func(context.Context, string, string, bool) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)

	challenge, err := svc.ToggleChallengeComplete(context.Background(), testSession(), "chl-1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if challenge.Completed {
		t.Fatalf("expected foreign toggle to leave completed unchanged")
	}
}

func TestJourneyCommentsSortedNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeStore{
		listJourneyCommentsFn: func(context.Context, string) ([]store.JourneyComment, error) {
			return []store.JourneyComment{
				{ID: "a", CreatedAt: base},
				{ID: "c", CreatedAt: base.Add(2 * time.Minute)},
				{ID: "b", CreatedAt: base.Add(time.Minute)},
			}, nil
		},
	}
	svc := newTestService(fs)

	comments, err := svc.JourneyComments(context.Background(), "jny-1")
	if err != nil {
		t.Fatalf("journey comments: %v", err)
	}
	if len(comments) != 3 || comments[0].ID != "c" || comments[1].ID != "b" || comments[2].ID != "a" {
		t.Fatalf("expected newest-first order, got %+v", comments)
	}
}

func TestAddJourneyCommentPublishesScopedEvent(t *testing.T) {
	fs := &fakeStore{
		getJourneyFn: func(_ context.Context, journeyID string) (store.Journey, error) {
			return store.Journey{ID: journeyID}, nil
		},
	}
	svc := newTestService(fs)
	scoped, cancelScoped := svc.Hub().Subscribe(journeyCommentsTopic("jny-1"))
	defer cancelScoped()
	other, cancelOther := svc.Hub().Subscribe(journeyCommentsTopic("jny-2"))
	defer cancelOther()

	if _, err := svc.AddJourneyComment(context.Background(), testSession(), "jny-1", "keep going"); err != nil {
		t.Fatalf("add comment: %v", err)
	}

	select {
	case event := <-scoped:
		if event.Type != live.EventCreated {
			t.Fatalf("expected created event, got %q", event.Type)
		}
	default:
		t.Fatalf("expected comment event on journey topic")
	}
	select {
	case event := <-other:
		t.Fatalf("expected no event on other journey topic, got %+v", event)
	default:
	}
}

func TestAddJourneyCommentBroadcastsFreshCount(t *testing.T) {
	fs := &fakeStore{
		getJourneyFn: func(_ context.Context, journeyID string) (store.Journey, error) {
			return store.Journey{ID: journeyID}, nil
		},
		journeyCommentCountFn: func(_ context.Context, journeyID string) (int, error) {
			if journeyID != "jny-1" {
				t.Fatalf("expected count for jny-1, got %q", journeyID)
			}
			return 4, nil
		},
	}
	svc := newTestService(fs)
	journeys, cancel := svc.Hub().Subscribe(TopicJourneys)
	defer cancel()

	if _, err := svc.AddJourneyComment(context.Background(), testSession(), "jny-1", "keep going"); err != nil {
		t.Fatalf("add comment: %v", err)
	}

	select {
	case event := <-journeys:
		if event.Type != live.EventUpdated {
			t.Fatalf("expected updated event, got %q", event.Type)
		}
		payload, ok := event.Payload.(map[string]any)
		if !ok {
			t.Fatalf("unexpected payload shape %T", event.Payload)
		}
		if payload["id"] != "jny-1" || payload["commentCount"] != 4 {
			t.Fatalf("unexpected payload %+v", payload)
		}
	default:
		t.Fatal("expected comment count event on journeys topic")
	}
}

func TestCreatePostRequiresContentOrImage(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreatePost(context.Background(), testSession(), "   ", "", time.Time{})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 domain error, got %v", err)
	}
}

func TestCreatePostAcceptsImageOnly(t *testing.T) {
	var inserted store.Post
	fs := &fakeStore{
		insertPostFn: func(_ context.Context, post store.Post) (time.Time, error) {
			inserted = post
			return time.Now().UTC(), nil
		},
	}
	svc := newTestService(fs)

	post, err := svc.CreatePost(context.Background(), testSession(), "", "https://img.example/tree.png", time.Time{})
	if err != nil {
		t.Fatalf("expected image-only post to be accepted, got %v", err)
	}
	if post.Image != "https://img.example/tree.png" {
		t.Fatalf("expected image kept, got %q", post.Image)
	}
	if inserted.Content != "" {
		t.Fatalf("expected empty content stored, got %q", inserted.Content)
	}
}

func TestUpdatePostAcceptsImageOnly(t *testing.T) {
	stored := store.Post{ID: "post-1", UserID: "user-1", Image: "https://img.example/tree.png"}
	fs := &fakeStore{
		updatePostContentFn: func(_ context.Context, _, _, content, image string) (bool, error) {
			stored.Content = content
			stored.Image = image
			return true, nil
		},
		getPostFn: func(context.Context, string) (store.Post, error) {
			return stored, nil
		},
	}
	svc := newTestService(fs)

	post, err := svc.UpdatePost(context.Background(), testSession(), "post-1", "", "https://img.example/forest.png")
	if err != nil {
		t.Fatalf("expected image-only edit to be accepted, got %v", err)
	}
	if post.Image != "https://img.example/forest.png" {
		t.Fatalf("expected updated image, got %q", post.Image)
	}
}

func TestCreatePostKeepsClientTimestamp(t *testing.T) {
	clientTS := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	serverTS := time.Date(2026, 2, 14, 9, 30, 7, 0, time.UTC)
	var inserted store.Post
	fs := &fakeStore{
		insertPostFn: func(_ context.Context, post store.Post) (time.Time, error) {
			inserted = post
			return serverTS, nil
		},
	}
	svc := newTestService(fs)

	post, err := svc.CreatePost(context.Background(), testSession(), "planted a tree", "", clientTS)
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if !inserted.ClientTimestamp.Equal(clientTS) {
		t.Fatalf("expected client timestamp preserved, got %v", inserted.ClientTimestamp)
	}
	if !post.ServerTimestamp.Equal(serverTS) {
		t.Fatalf("expected canonical server timestamp, got %v", post.ServerTimestamp)
	}
}

func TestUpdatePostForeignOwnerReturnsUnchanged(t *testing.T) {
	stored := store.Post{ID: "post-1", UserID: "someone-else", Content: "original"}
	fs := &fakeStore{
		updatePostContentFn: func(context.Context, string, string, string, string) (bool, error) {
			return false, nil
		},
		getPostFn: func(context.Context, string) (store.Post, error) {
			return stored, nil
		},
	}
	svc := newTestService(fs)
	events, cancel := svc.Hub().Subscribe(TopicPosts)
	defer cancel()

	post, err := svc.UpdatePost(context.Background(), testSession(), "post-1", "hijacked", "")
	if err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
	if post.Content != "original" {
		t.Fatalf("expected unchanged post, got %q", post.Content)
	}
	select {
	case event := <-events:
		t.Fatalf("expected no event for a no-op edit, got %+v", event)
	default:
	}
}
