package catalog

import (
	"github.com/brianvoe/gofakeit/v7"
)

// SeedSample adds the demo books and patrons.
func SeedSample(s *Store) {
	s.AddBook("The Great Gatsby", "F. Scott Fitzgerald", "978-0743273565")
	s.AddBook("To Kill a Mockingbird", "Harper Lee", "978-0446310789")
	s.AddBook("1984", "George Orwell", "978-0451524935")

	s.AddPatron("John Doe", "john@example.com", "123-456-7890")
	s.AddPatron("Jane Smith", "jane@example.com", "098-765-4321")
}

// SeedFake adds n books and n/2 patrons with random content.
func SeedFake(s *Store, n int) {
	for range n {
		b := gofakeit.Book()
		s.AddBook(b.Title, b.Author, gofakeit.Numerify("978-##########"))
	}
	for range n / 2 {
		s.AddPatron(gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
	}
}
