package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/discloseaudit/backend/internal/database"
	"github.com/discloseaudit/backend/internal/models"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const defaultSeedFile = "data/initial-users.json"

type seedUser struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type seedFile struct {
	Users []seedUser `json:"users"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	path := os.Getenv("SEED_USERS_FILE")
	if path == "" {
		path = defaultSeedFile
	}

	users, err := loadSeedUsers(path)
	if err != nil {
		log.Fatalf("Cannot load seed users: %v (set SEED_USERS_FILE to point at a users file)", err)
	}

	database.Connect()
	database.AutoMigrate()

	created, skipped := 0, 0
	for _, entry := range users {
		ok, err := createUser(entry)
		if err != nil {
			log.Fatalf("Failed to seed %s: %v", entry.Email, err)
		}
		if ok {
			created++
			log.Printf("Created user %s (%s)", entry.Email, entry.Role)
		} else {
			skipped++
			log.Printf("User %s already exists, skipping", entry.Email)
		}
	}

	log.Printf("Seeding done: %d created, %d already present", created, skipped)
}

func loadSeedUsers(path string) ([]seedUser, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file seedFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%s is not valid JSON: %w", path, err)
	}
	if len(file.Users) == 0 {
		return nil, fmt.Errorf("%s lists no users", path)
	}

	for i, entry := range file.Users {
		if entry.Email == "" || entry.Password == "" {
			return nil, fmt.Errorf("%s: user %d is missing email or password", path, i)
		}
		if _, ok := models.ParseUserRole(entry.Role); !ok {
			return nil, fmt.Errorf("%s: user %s has unknown role %q", path, entry.Email, entry.Role)
		}
	}
	return file.Users, nil
}

// createUser inserts the user unless the email is already taken. Reports
// whether a row was created.
func createUser(entry seedUser) (bool, error) {
	var existing models.User
	if err := database.DB.Where("email = ?", entry.Email).First(&existing).Error; err == nil {
		return false, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(entry.Password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}

	role, _ := models.ParseUserRole(entry.Role)
	user := models.User{
		Email:     entry.Email,
		Password:  string(hashed),
		FirstName: entry.FirstName,
		LastName:  entry.LastName,
		Role:      role,
	}
	return true, database.DB.Create(&user).Error
}
