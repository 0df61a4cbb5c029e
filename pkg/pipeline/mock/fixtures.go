package mock

import (
	"fmt"

	"servicelines-be/pkg/pipeline"
)

// DefaultResponders returns canned procurement data for every stage.
func DefaultResponders() map[pipeline.Stage]Responder {
	return map[pipeline.Stage]Responder{
		pipeline.StageCategories: Static(pipeline.CategoriesResponse{
			LlmCat: []string{"Maintenance & Repair", "Mechanical Services", "Facility Management"},
			Status: "success",
		}),
		pipeline.StageTypes: Static(pipeline.TypesResponse{
			LlmCat: []string{"Maintenance & Repair", "Mechanical Services", "Facility Management"},
			LlmTypes: pipeline.ServiceTypes{ServiceTypes: []pipeline.ServiceType{
				{
					ServiceType: "Pump Repair",
					Reason:      "The request names repair work on pumping equipment.",
					Classes:     []string{"SC-4100", "SC-4110"},
				},
				{
					ServiceType: "Preventive Maintenance",
					Reason:      "Recurring inspection is usually bundled with pump repairs.",
					Classes:     []string{"SC-4200"},
				},
			}},
			Status: "success",
		}),
		pipeline.StageClasses: Static(pipeline.ClassesResponse{
			LlmClass: []pipeline.ServiceClass{
				{Category: "Maintenance & Repair", Class: "SC-4100", Group: "MRO", Kltxt: "Centrifugal pump repair", Type: "Pump Repair"},
				{Category: "Maintenance & Repair", Class: "SC-4110", Group: "MRO", Kltxt: "Pump seal replacement", Type: "Pump Repair"},
				{Category: "Mechanical Services", Class: "SC-4200", Group: "MRO", Kltxt: "Pump preventive maintenance", Type: "Preventive Maintenance"},
				{Category: "Maintenance & Repair", Class: "SC-4100", Group: "MRO", Kltxt: "Centrifugal pump repair", Type: "Pump Repair"},
			},
			Status: "success",
		}),
		pipeline.StageGenerateText: generateText,
	}
}

func generateText(payload any) (any, error) {
	req, ok := payload.(pipeline.GenerateTextRequest)
	if !ok {
		if p, isPtr := payload.(*pipeline.GenerateTextRequest); isPtr && p != nil {
			req = *p
		}
	}
	cls := req.ServiceClass
	draft := fmt.Sprintf("%s - %s", cls.Kltxt, cls.Type)
	if req.ExtraInstruction != "" {
		draft = fmt.Sprintf("%s (%s)", draft, req.ExtraInstruction)
	}
	return map[string]any{
		"existing_services": []pipeline.ExistingService{
			{SmNo: cls.Class + "-001", Text: cls.Kltxt, Score: 0.91, Confidence: "high"},
			{SmNo: cls.Class + "-002", Text: cls.Kltxt + ", on site", Score: 0.74, Confidence: "medium"},
		},
		"new":    draft,
		"status": "success",
	}, nil
}
