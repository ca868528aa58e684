package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sceneforge/internal/storage"
)

type RegisterBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type SigninBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func subscriptionCacheKey(username string) string {
	return fmt.Sprintf("subscription_level:%s", username)
}

func lastLoginCacheKey(username string) string {
	return fmt.Sprintf("last_login:%s", username)
}

func (s *Server) handleRegister(c *gin.Context) {
	const op = "server.handleRegister"

	var body RegisterBody
	if err := c.BindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Username == "" || body.Password == "" || body.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username, password, and email are required"})
		return
	}

	if _, err := s.db.GetUserByUsername(c.Request.Context(), body.Username); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	user, err := s.db.CreateUser(c.Request.Context(), body.Username, string(hash), body.Email)
	if err != nil {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	if err := s.db.CreateLog(c.Request.Context(), user.ID, "registered"); err != nil {
		log.Printf("%s: activity log: %v", op, err)
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully"})
}

func (s *Server) handleSignin(c *gin.Context) {
	const op = "server.handleSignin"

	var body SigninBody
	if err := c.BindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	user, err := s.db.GetUserByUsername(c.Request.Context(), body.Username)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("%s: %v", op, err)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := s.db.CreateSession(c.Request.Context(), user.ID, s.cfg.SessionTTL)
	if err != nil {
		log.Printf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	c.SetCookie(sessionCookie, token.String(), int(s.cfg.SessionTTL.Seconds()), "/", "", false, true)

	s.cache.Set(c.Request.Context(), lastLoginCacheKey(user.Username),
		[]byte(time.Now().UTC().Format(time.RFC3339)), s.cfg.SessionTTL)
	s.cache.Set(c.Request.Context(), subscriptionCacheKey(user.Username),
		[]byte(user.SubscriptionLevel), s.cfg.SessionTTL)

	if err := s.db.CreateLog(c.Request.Context(), user.ID, "signed in"); err != nil {
		log.Printf("%s: activity log: %v", op, err)
	}
	c.JSON(http.StatusOK, gin.H{
		"message":            "Login successful",
		"username":           user.Username,
		"subscription_level": user.SubscriptionLevel,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	const op = "server.handleLogout"
	user := currentUser(c)

	if raw, err := c.Cookie(sessionCookie); err == nil {
		if token, err := uuid.Parse(raw); err == nil {
			if err := s.db.DeleteSession(c.Request.Context(), token); err != nil {
				log.Printf("%s: %v", op, err)
			}
		}
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)

	s.cache.Del(c.Request.Context(), lastLoginCacheKey(user.Username), subscriptionCacheKey(user.Username))

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (s *Server) handleCheck(c *gin.Context) {
	user, ok := s.sessionUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	level := user.SubscriptionLevel
	if cached, ok := s.cache.Get(c.Request.Context(), subscriptionCacheKey(user.Username)); ok {
		level = string(cached)
	}
	c.JSON(http.StatusOK, gin.H{"username": user.Username, "subscription_level": level})
}
