package db

import (
	"path/filepath"
	"testing"
)

type note struct {
	ID   uint
	Text string
}

func TestOpen(t *testing.T) {
	t.Run(t.Name(), func(t *testing.T) {
		if _, err := Open("nosuch", "x"); err == nil {
			t.Fatal("unknown type should fail")
		}
		db, err := Open("sqlite", filepath.Join(t.TempDir(), "t.db"))
		if err != nil {
			t.Fatal(err)
		}
		if err = db.AutoMigrate(&note{}); err != nil {
			t.Fatal(err)
		}
		db.Create(&note{Text: "moov"})
		var got note
		if err = db.First(&got).Error; err != nil || got.Text != "moov" {
			t.Fatalf("got %+v, %v", got, err)
		}
	})
}
