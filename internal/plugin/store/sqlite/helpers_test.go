package sqlite

import "github.com/chirino/student-memory-service/internal/model"

func modelProfile(id string) model.StudentProfile {
	return model.StudentProfile{StudentID: id, DisplayName: "Test " + id}
}

func modelFact(studentID, text string) model.RecordFactRequest {
	return model.RecordFactRequest{StudentID: studentID, FactType: model.FactTypeAccommodation, FactText: text, Source: model.SourceParent}
}
