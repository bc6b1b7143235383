package database

import (
	"examhub_backend/internal/config"
	"examhub_backend/internal/model"
	"examhub_backend/internal/util"
	"log"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedAdmin 启动时创建管理员账号（已存在则跳过）
func SeedAdmin(db *gorm.DB, cfg *config.AdminConfig) error {
	// 与登录时的 DNI 规范化保持一致
	code := util.NormalizeCode(cfg.Code)

	var count int64
	if err := db.Model(&model.User{}).Where("dni = ?", code).Count(&count).Error; err != nil {
		return errors.Wrap(err, "count admin")
	}
	if count > 0 {
		return nil
	}

	if cfg.Password == "" {
		log.Printf("Admin password not configured, skipping creation of admin %q", code)
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hash admin password")
	}
	hashStr := string(hash)

	admin := &model.User{
		Code:         code,
		Name:         cfg.Name,
		PasswordHash: &hashStr,
		Role:         model.Admin,
	}
	if err := db.Create(admin).Error; err != nil {
		return errors.Wrap(err, "create admin")
	}

	log.Printf("Admin user %q created", code)
	return nil
}

type sampleQuestion struct {
	t string
	o [4]string
	c int
}

type sampleExam struct {
	title, icon, description string
	timeLimit                int
	pointsIncorrect          float64
	deadlineDays             int
	questions                []sampleQuestion
}

var sampleExams = []sampleExam{
	{
		title:        "Basic Photography",
		icon:         "📷",
		description:  "Fundamental photography concepts",
		timeLimit:    1800,
		deadlineDays: 60,
		questions: []sampleQuestion{
			{"What is the exposure triangle?", [4]string{"A tripod accessory", "The relation between ISO, aperture and shutter speed", "A composition rule", "The camera sensor"}, 1},
			{"What does the aperture control?", [4]string{"Exposure time", "Sensor sensitivity", "Amount of light and depth of field", "Autofocus"}, 2},
			{"A low f-number (e.g. f/1.8) means:", [4]string{"Less light, deeper focus", "More light, shallower depth of field", "A darker image", "Faster shutter"}, 1},
			{"What is ISO?", [4]string{"An image file format", "Sensor sensitivity to light", "Sensor size", "Focal length"}, 1},
			{"What happens when ISO is raised a lot?", [4]string{"The image gets sharper", "More noise appears", "Colors saturate", "Depth of field shrinks"}, 1},
			{"The rule of thirds consists of:", [4]string{"Using three lights", "Placing elements on the intersections of a 3x3 grid", "Shooting only in 3:2", "Using three colors"}, 1},
			{"What is depth of field?", [4]string{"Camera to subject distance", "The zone of the image that looks in focus", "Megapixel count", "Lens angle of view"}, 1},
			{"A shutter speed of 1/1000 is:", [4]string{"Very slow", "Very fast, freezes motion", "Standard for portraits", "Only for night shots"}, 1},
		},
	},
	{
		title:           "Photographic Lighting",
		icon:            "💡",
		description:     "Lighting techniques for photography",
		timeLimit:       1800,
		pointsIncorrect: 0.25,
		deadlineDays:    90,
		questions: []sampleQuestion{
			{"What is a softbox?", [4]string{"A gear case", "A modifier that softens flash light", "A type of tripod", "A neutral density filter"}, 1},
			{"Fill light is used to:", [4]string{"Be the main light", "Reduce shadows from the key light", "Create special effects", "Light the background"}, 1},
			{"Rembrandt lighting is recognised by:", [4]string{"Flat lighting", "A triangle of light on the shadow-side cheek", "Pure side light", "Light from below"}, 1},
			{"Tungsten light colour temperature is about:", [4]string{"2700-3200K", "5500K", "6500K", "10000K"}, 0},
			{"A snoot is used to:", [4]string{"Soften light", "Concentrate light into a narrow beam", "Spread light everywhere", "Change light colour"}, 1},
		},
	},
}

// SeedSampleExams 在 exams 表为空时写入示例考试
func SeedSampleExams(db *gorm.DB, adminCode string) error {
	var count int64
	if err := db.Model(&model.Exam{}).Count(&count).Error; err != nil {
		return errors.Wrap(err, "count exams")
	}
	if count > 0 {
		log.Printf("%d exams already exist, skipping sample data", count)
		return nil
	}

	var admin model.User
	if err := db.Where("dni = ?", util.NormalizeCode(adminCode)).First(&admin).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(err, "load admin")
	}

	return db.Transaction(func(tx *gorm.DB) error {
		for _, se := range sampleExams {
			deadline := time.Now().AddDate(0, 0, se.deadlineDays)
			exam := &model.Exam{
				Title:           se.title,
				Icon:            se.icon,
				Description:     se.description,
				TimeLimit:       se.timeLimit,
				PointsCorrect:   model.DefaultPointsCorrect,
				PointsIncorrect: se.pointsIncorrect,
				MaxAttempts:     model.DefaultMaxAttempts,
				Deadline:        &deadline,
				IsActive:        true,
				Shuffle:         true,
				CreatedBy:       admin.ID,
			}
			if err := tx.Create(exam).Error; err != nil {
				return errors.Wrap(err, "create sample exam")
			}

			questions := make([]model.Question, 0, len(se.questions))
			for idx, sq := range se.questions {
				q := model.Question{
					ExamID:        exam.ID,
					Text:          sq.t,
					CorrectOption: sq.c,
					OrderNum:      idx,
				}
				q.SetOptions(sq.o[:])
				questions = append(questions, q)
			}
			if err := tx.Create(&questions).Error; err != nil {
				return errors.Wrap(err, "create sample questions")
			}
		}
		log.Printf("%d sample exams created", len(sampleExams))
		return nil
	})
}
