package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"ecostarter/api/internal/ai"
	"ecostarter/api/internal/auth"
	"ecostarter/api/internal/authpw"
	"ecostarter/api/internal/config"
	"ecostarter/api/internal/live"
	"ecostarter/api/internal/search"
	"ecostarter/api/internal/store"
	"ecostarter/api/internal/util"
)

// Session is the authenticated caller as reconstructed from the access token.
// RefreshToken is only set on the responses that mint one.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

// Live topics. Journey comments are scoped per journey so a detail view only
// hears about its own thread.
const (
	TopicPosts    = "posts"
	TopicJourneys = "journeys"
)

func journeyCommentsTopic(journeyID string) string {
	return "journey_comments/" + journeyID
}

var allowedDifficulties = map[string]struct{}{
	"easy":   {},
	"medium": {},
	"hard":   {},
}

var allowedJourneyCategories = map[string]struct{}{
	"energy":    {},
	"transport": {},
	"food":      {},
	"waste":     {},
	"water":     {},
	"other":     {},
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetProfile(context.Context, string) (store.Profile, error)
	CreateProfile(context.Context, string, store.Profile) error
	UpdateProfileFields(context.Context, string, store.ProfilePatch) (bool, error)
	ListPosts(context.Context) ([]store.Post, error)
	GetPost(context.Context, string) (store.Post, error)
	InsertPost(context.Context, store.Post) (time.Time, error)
	UpdatePostContent(context.Context, string, string, string, string) (bool, error)
	DeletePost(context.Context, string, string) (bool, error)
	AddPostLike(context.Context, string, string) error
	RemovePostLike(context.Context, string, string) error
	AppendPostComment(context.Context, string, store.Comment) (bool, error)
	ListJourneys(context.Context) ([]store.Journey, error)
	GetJourney(context.Context, string) (store.Journey, error)
	InsertJourney(context.Context, store.Journey) error
	AddJourneyLike(context.Context, string, string) error
	RemoveJourneyLike(context.Context, string, string) error
	InsertJourneyComment(context.Context, store.JourneyComment) error
	ListJourneyComments(context.Context, string) ([]store.JourneyComment, error)
	JourneyCommentCount(context.Context, string) (int, error)
	ListChallenges(context.Context, string) ([]store.Challenge, error)
	GetChallenge(context.Context, string) (store.Challenge, error)
	InsertChallenge(context.Context, store.Challenge) error
	UpdateChallenge(context.Context, store.Challenge) (bool, error)
	SetChallengeCompleted(context.Context, string, string, bool) (bool, error)
	DeleteChallenge(context.Context, string, string) (bool, error)
	ListCarbonEntries(context.Context, string) ([]store.CarbonEntry, error)
	InsertCarbonEntry(context.Context, store.CarbonEntry) error
	Ping(ctx context.Context) error
}

// SessionStore holds refresh tokens. Backed by Redis when configured,
// otherwise by the refresh_sessions table.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// ImageStore uploads raw image bytes and returns a public URL.
type ImageStore interface {
	UploadImage(ctx context.Context, data []byte) (string, error)
}

type authService interface {
	SignUp(ctx context.Context, req authpw.SignUpRequest) (store.User, error)
	SignIn(ctx context.Context, req authpw.SignInRequest) (store.User, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	auth     authService
	ai       *ai.Service
	search   *search.Service
	images   ImageStore
	hub      *live.Hub
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions SessionStore, aiService *ai.Service, searchService *search.Service, images ImageStore, hub *live.Hub) *Service {
	if hub == nil {
		hub = live.NewHub()
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		auth:     authpw.NewService(dataStore),
		ai:       aiService,
		search:   searchService,
		images:   images,
		hub:      hub,
	}
}

// Hub exposes the live event hub for stream handlers.
func (s *Service) Hub() *live.Hub {
	return s.hub
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- sessions ---

func (s *Service) SignUp(ctx context.Context, name, email, password string) (Session, error) {
	user, err := s.auth.SignUp(ctx, authpw.SignUpRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.auth.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token: the presented token is revoked and a
// fresh pair is issued, so a replayed token fails the lookup.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	found, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, found.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, user.Email, jti, expiresAt)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates the access token. The claims are self-contained,
// so no storage round-trip happens on authenticated requests.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Subject,
		UserName:  claims.Name,
		Email:     claims.Email,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the refresh token. The access token simply ages out.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// --- profile ---

// Profile returns the caller's profile, creating the default one on first
// read. The default display name is derived from the email local part, and
// creation is idempotent so a concurrent first read cannot clobber it.
func (s *Service) Profile(ctx context.Context, session Session) (store.Profile, error) {
	profile, err := s.store.GetProfile(ctx, session.UserID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.Profile{}, err
	}

	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return store.Profile{}, err
	}
	if err := s.store.CreateProfile(ctx, session.UserID, store.Profile{
		DisplayName: defaultDisplayName(user),
		Interests:   []string{},
	}); err != nil {
		return store.Profile{}, err
	}
	return s.store.GetProfile(ctx, session.UserID)
}

func defaultDisplayName(user store.User) string {
	if strings.TrimSpace(user.DisplayName) != "" {
		return user.DisplayName
	}
	local, _, _ := strings.Cut(user.Email, "@")
	if strings.TrimSpace(local) == "" {
		return "member"
	}
	return local
}

// UpdateProfile merges the non-nil patch fields into the profile. A patch
// that omits a field leaves the stored value alone.
func (s *Service) UpdateProfile(ctx context.Context, session Session, patch store.ProfilePatch) (store.Profile, error) {
	// Ensure the row exists before patching an account that never
	// fetched its profile.
	if _, err := s.Profile(ctx, session); err != nil {
		return store.Profile{}, err
	}
	if _, err := s.store.UpdateProfileFields(ctx, session.UserID, patch); err != nil {
		return store.Profile{}, err
	}
	return s.store.GetProfile(ctx, session.UserID)
}

// --- community feed ---

func (s *Service) Feed(ctx context.Context) ([]store.Post, error) {
	return s.store.ListPosts(ctx)
}

// CreatePost writes the post with both the client-observed timestamp and the
// canonical server one; ordering always follows the server timestamp.
func (s *Service) CreatePost(ctx context.Context, session Session, content, image string, clientTimestamp time.Time) (store.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" && image == "" {
		return store.Post{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a post needs text or an image", nil)
	}
	if clientTimestamp.IsZero() {
		clientTimestamp = time.Now().UTC()
	}

	profile, err := s.Profile(ctx, session)
	if err != nil {
		return store.Post{}, err
	}

	post := store.Post{
		ID:              util.NewID("post"),
		UserID:          session.UserID,
		UserName:        profile.DisplayName,
		UserAvatar:      profile.ProfileImage,
		Content:         content,
		Image:           image,
		Likes:           []string{},
		Comments:        []store.Comment{},
		ClientTimestamp: clientTimestamp,
	}
	serverTimestamp, err := s.store.InsertPost(ctx, post)
	if err != nil {
		return store.Post{}, err
	}
	post.ServerTimestamp = serverTimestamp

	s.hub.Publish(live.Event{Topic: TopicPosts, Type: live.EventCreated, Payload: post})
	if s.search != nil {
		s.search.IndexPost(search.PostRecord{ID: post.ID, AuthorID: post.UserID, AuthorName: post.UserName, Content: post.Content})
	}
	return post, nil
}

// UpdatePost edits the caller's own post. Editing someone else's post is a
// silent no-op that returns the unchanged post.
func (s *Service) UpdatePost(ctx context.Context, session Session, postID, content, image string) (store.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" && image == "" {
		return store.Post{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "a post needs text or an image", nil)
	}

	updated, err := s.store.UpdatePostContent(ctx, postID, session.UserID, content, image)
	if err != nil {
		return store.Post{}, err
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}
	if updated {
		s.hub.Publish(live.Event{Topic: TopicPosts, Type: live.EventUpdated, Payload: post})
		if s.search != nil {
			s.search.IndexPost(search.PostRecord{ID: post.ID, AuthorID: post.UserID, AuthorName: post.UserName, Content: post.Content})
		}
	}
	return post, nil
}

// DeletePost removes the caller's own post. Deleting a foreign or missing
// post succeeds without effect.
func (s *Service) DeletePost(ctx context.Context, session Session, postID string) error {
	deleted, err := s.store.DeletePost(ctx, postID, session.UserID)
	if err != nil {
		return err
	}
	if deleted {
		s.hub.Publish(live.Event{Topic: TopicPosts, Type: live.EventDeleted, Payload: map[string]string{"id": postID}})
		if s.search != nil {
			s.search.DeletePost(postID)
		}
	}
	return nil
}

// TogglePostLike adds the caller to the like set, or removes them if already
// present. The membership updates are add-unique and remove-by-value, so a
// raced double toggle cannot duplicate an entry.
func (s *Service) TogglePostLike(ctx context.Context, session Session, postID string) (store.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}

	if containsString(post.Likes, session.UserID) {
		err = s.store.RemovePostLike(ctx, postID, session.UserID)
	} else {
		err = s.store.AddPostLike(ctx, postID, session.UserID)
	}
	if err != nil {
		return store.Post{}, err
	}

	post, err = s.store.GetPost(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}
	s.hub.Publish(live.Event{Topic: TopicPosts, Type: live.EventUpdated, Payload: post})
	return post, nil
}

// CommentOnPost appends a comment to the post's embedded comment list.
// Comments only ever grow; there is no removal operation.
func (s *Service) CommentOnPost(ctx context.Context, session Session, postID, content string) (store.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return store.Comment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}

	profile, err := s.Profile(ctx, session)
	if err != nil {
		return store.Comment{}, err
	}

	comment := store.Comment{
		ID:         uuid.NewString(),
		UserID:     session.UserID,
		UserName:   profile.DisplayName,
		UserAvatar: profile.ProfileImage,
		Content:    content,
		Timestamp:  time.Now().UTC(),
	}
	ok, err := s.store.AppendPostComment(ctx, postID, comment)
	if err != nil {
		return store.Comment{}, err
	}
	if !ok {
		return store.Comment{}, sql.ErrNoRows
	}

	if post, err := s.store.GetPost(ctx, postID); err == nil {
		s.hub.Publish(live.Event{Topic: TopicPosts, Type: live.EventUpdated, Payload: post})
	}
	return comment, nil
}

// --- journeys ---

func (s *Service) Journeys(ctx context.Context) ([]store.Journey, error) {
	return s.store.ListJourneys(ctx)
}

func (s *Service) CreateJourney(ctx context.Context, session Session, title, description, category, image string) (store.Journey, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Journey{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	category = strings.ToLower(strings.TrimSpace(category))
	if _, ok := allowedJourneyCategories[category]; !ok {
		category = "other"
	}

	journey := store.Journey{
		ID:          util.NewID("jny"),
		UserID:      session.UserID,
		UserEmail:   session.Email,
		Title:       title,
		Description: strings.TrimSpace(description),
		Category:    category,
		Image:       image,
		Likes:       []string{},
	}
	if err := s.store.InsertJourney(ctx, journey); err != nil {
		return store.Journey{}, err
	}
	journey, err := s.store.GetJourney(ctx, journey.ID)
	if err != nil {
		return store.Journey{}, err
	}

	s.hub.Publish(live.Event{Topic: TopicJourneys, Type: live.EventCreated, Payload: journey})
	if s.search != nil {
		s.search.IndexJourney(search.JourneyRecord{ID: journey.ID, AuthorID: journey.UserID, Title: journey.Title, Description: journey.Description})
	}
	return journey, nil
}

func (s *Service) ToggleJourneyLike(ctx context.Context, session Session, journeyID string) (store.Journey, error) {
	journey, err := s.store.GetJourney(ctx, journeyID)
	if err != nil {
		return store.Journey{}, err
	}

	if containsString(journey.Likes, session.UserID) {
		err = s.store.RemoveJourneyLike(ctx, journeyID, session.UserID)
	} else {
		err = s.store.AddJourneyLike(ctx, journeyID, session.UserID)
	}
	if err != nil {
		return store.Journey{}, err
	}

	journey, err = s.store.GetJourney(ctx, journeyID)
	if err != nil {
		return store.Journey{}, err
	}
	s.hub.Publish(live.Event{Topic: TopicJourneys, Type: live.EventUpdated, Payload: journey})
	return journey, nil
}

// JourneyComments loads a journey's comment thread, newest first. The sort
// happens here on every read rather than in the query.
func (s *Service) JourneyComments(ctx context.Context, journeyID string) ([]store.JourneyComment, error) {
	comments, err := s.store.ListJourneyComments(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID > comments[j].ID
		}
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})
	return comments, nil
}

func (s *Service) AddJourneyComment(ctx context.Context, session Session, journeyID, text string) (store.JourneyComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.JourneyComment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	if _, err := s.store.GetJourney(ctx, journeyID); err != nil {
		return store.JourneyComment{}, err
	}

	comment := store.JourneyComment{
		ID:        uuid.NewString(),
		JourneyID: journeyID,
		UserID:    session.UserID,
		UserEmail: session.Email,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertJourneyComment(ctx, comment); err != nil {
		return store.JourneyComment{}, err
	}
	s.hub.Publish(live.Event{Topic: journeyCommentsTopic(journeyID), Type: live.EventCreated, Payload: comment})

	// Journey list views show a comment count; push the fresh total so they
	// can update without refetching.
	if count, err := s.store.JourneyCommentCount(ctx, journeyID); err == nil {
		s.hub.Publish(live.Event{
			Topic:   TopicJourneys,
			Type:    live.EventUpdated,
			Payload: map[string]any{"id": journeyID, "commentCount": count},
		})
	}
	return comment, nil
}

// --- challenges ---

func (s *Service) Challenges(ctx context.Context, session Session) ([]store.Challenge, error) {
	return s.store.ListChallenges(ctx, session.UserID)
}

func (s *Service) CreateChallenge(ctx context.Context, session Session, input store.Challenge) (store.Challenge, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Challenge{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	difficulty := strings.ToLower(strings.TrimSpace(input.Difficulty))
	if _, ok := allowedDifficulties[difficulty]; !ok {
		difficulty = "medium"
	}

	challenge := store.Challenge{
		ID:          util.NewID("chl"),
		UserID:      session.UserID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Difficulty:  difficulty,
		Impact:      strings.TrimSpace(input.Impact),
		DueDate:     strings.TrimSpace(input.DueDate),
		Completed:   false,
	}
	if err := s.store.InsertChallenge(ctx, challenge); err != nil {
		return store.Challenge{}, err
	}
	return challenge, nil
}

// UpdateChallenge rewrites the caller's own challenge. Updating a foreign
// challenge is a silent no-op returning the stored record.
func (s *Service) UpdateChallenge(ctx context.Context, session Session, input store.Challenge) (store.Challenge, error) {
	difficulty := strings.ToLower(strings.TrimSpace(input.Difficulty))
	if _, ok := allowedDifficulties[difficulty]; !ok {
		difficulty = "medium"
	}
	input.UserID = session.UserID
	input.Difficulty = difficulty

	if _, err := s.store.UpdateChallenge(ctx, input); err != nil {
		return store.Challenge{}, err
	}
	return s.store.GetChallenge(ctx, input.ID)
}

// ToggleChallengeComplete flips only the completed flag, leaving every other
// field as stored.
func (s *Service) ToggleChallengeComplete(ctx context.Context, session Session, challengeID string) (store.Challenge, error) {
	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return store.Challenge{}, err
	}
	flipped, err := s.store.SetChallengeCompleted(ctx, challengeID, session.UserID, !challenge.Completed)
	if err != nil {
		return store.Challenge{}, err
	}
	if flipped {
		challenge.Completed = !challenge.Completed
	}
	return challenge, nil
}

func (s *Service) DeleteChallenge(ctx context.Context, session Session, challengeID string) error {
	_, err := s.store.DeleteChallenge(ctx, challengeID, session.UserID)
	return err
}

// --- carbon footprint ---

func (s *Service) CarbonHistory(ctx context.Context, session Session) ([]store.CarbonEntry, error) {
	return s.store.ListCarbonEntries(ctx, session.UserID)
}

// LogCarbonFootprint runs the AI calculation and appends the result to the
// caller's series. A calculation failure of any kind leaves the series
// untouched.
func (s *Service) LogCarbonFootprint(ctx context.Context, session Session, answers ai.LifestyleAnswers) (store.CarbonEntry, error) {
	if s.ai == nil {
		return store.CarbonEntry{}, domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "Carbon calculation is not configured", nil)
	}
	result, err := s.ai.CalculateCarbonFootprint(ctx, answers)
	if err != nil {
		return store.CarbonEntry{}, err
	}

	entry := store.CarbonEntry{
		ID:             util.NewID("cfp"),
		UserID:         session.UserID,
		Date:           time.Now().UTC(),
		Total:          result.MonthlyFootprint,
		Transportation: result.Breakdown.Transportation,
		Energy:         result.Breakdown.Energy,
		Consumption:    result.Breakdown.Consumption,
		Waste:          result.Breakdown.Waste,
	}
	if err := s.store.InsertCarbonEntry(ctx, entry); err != nil {
		return store.CarbonEntry{}, err
	}
	return entry, nil
}

func (s *Service) AnalyzeLifestyle(ctx context.Context, answers ai.LifestyleAnswers) (string, error) {
	if s.ai == nil {
		return "", domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "Lifestyle analysis is not configured", nil)
	}
	return s.ai.AnalyzeLifestyle(ctx, answers)
}

// --- search ---

func (s *Service) Search(ctx context.Context, text, filterType string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	switch filterType {
	case "", string(search.ResultPost), string(search.ResultJourney):
	default:
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be 'post' or 'journey'", nil)
	}
	return s.search.Search(search.Query{
		Text:       text,
		FilterType: search.ResultType(filterType),
		Limit:      limit,
		Offset:     offset,
	}), nil
}

// --- uploads ---

func (s *Service) UploadImage(ctx context.Context, data []byte) (string, error) {
	if s.images == nil {
		return "", domainError(http.StatusServiceUnavailable, "UPLOADS_DISABLED", "Image uploads are not configured", nil)
	}
	return s.images.UploadImage(ctx, data)
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
